package rangeopt

import (
	"strings"
)

// SelImerge index merge 候选：各棵树分别扫描，结果按行号去重后求并
type SelImerge struct {
	Trees []*SelTree
}

func (im *SelImerge) release() {
	for _, t := range im.Trees {
		t.release()
	}
	im.Trees = nil
}

func (im *SelImerge) clone() *SelImerge {
	c := &SelImerge{Trees: make([]*SelTree, 0, len(im.Trees))}
	for _, t := range im.Trees {
		c.Trees = append(c.Trees, t.clone())
	}
	return c
}

func (im *SelImerge) String() string {
	items := make([]string, 0, len(im.Trees))
	for _, t := range im.Trees {
		items = append(items, "("+t.String()+")")
	}
	return "merge{" + strings.Join(items, " OR ") + "}"
}

// orSelTreeWithChecks 把 tree 并入能合并的那一棵，合并不了就追加。
// 返回 true 表示这个候选已经不限制任何行，应当丢弃
func (p *Param) orSelTreeWithChecks(im *SelImerge, tree *SelTree) bool {
	for i, t := range im.Trees {
		if canBeOred(t, tree) {
			r := p.TreeOr(t, tree)
			im.Trees[i] = r
			return r.Type == TreeAlways || r.Type == TreeMaybe
		}
	}
	im.Trees = append(im.Trees, tree)
	return false
}

func (p *Param) orSelImergeWithChecks(im, other *SelImerge) bool {
	for i, t := range other.Trees {
		other.Trees[i] = nil
		if p.orSelTreeWithChecks(im, t) {
			for _, rest := range other.Trees[i+1:] {
				rest.release()
			}
			other.Trees = nil
			return true
		}
	}
	other.Trees = nil
	return false
}

// imergeListOrList 两个 index merge 列表的并。只取两边各自的第一个候选相乘，
// 其余候选直接丢弃，loose 表示确实丢弃过
func (p *Param) imergeListOrList(im1, im2 []*SelImerge) (merges []*SelImerge, always, loose bool) {
	loose = len(im1) > 1 || len(im2) > 1
	for _, im := range im1[1:] {
		im.release()
	}
	for _, im := range im2[1:] {
		im.release()
	}
	head := im1[0]
	if p.orSelImergeWithChecks(head, im2[0]) {
		head.release()
		return nil, true, loose
	}
	return []*SelImerge{head}, false, loose
}

// imergeListOrTree 把 tree 并入列表中的每一个候选，返回仍然有效的候选
func (p *Param) imergeListOrTree(list []*SelImerge, tree *SelTree) []*SelImerge {
	kept := list[:0]
	for i, im := range list {
		t := tree
		if i < len(list)-1 {
			t = tree.clone()
		}
		if p.orSelTreeWithChecks(im, t) {
			im.release()
			continue
		}
		kept = append(kept, im)
	}
	return kept
}
