package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/logger"
	"github.com/zhukovaskychina/xmysql-optimizer/server/conf"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/charset"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/engine"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/engine/quick"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/plan/rangeopt"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/storage/memstore"
)

const help = `
******************************************************************************************
*帮助:
*1. -- help
*2. -- configPath   指定my.ini配置文件
*3. -- rows         演示表的行数
******************************************************************************************
`

type demoQuery struct {
	title string
	cond  rangeopt.Cond
	group *rangeopt.GroupMinMaxQuery
}

func main() {
	var configPath string
	var rows int64
	flag.StringVar(&configPath, "configPath", "", "配置文件路径")
	flag.Int64Var(&rows, "rows", 5000, "演示表的行数")
	flag.Usage = func() { fmt.Fprint(os.Stderr, help) }
	flag.Parse()

	config, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: config.LogError,
		InfoLogPath:  config.LogInfos,
		LogLevel:     config.LogLevel,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logger.Infof("optimizer switch: %+v", config.OptimizerSwitch())

	tbl, err := buildOrders(rows)
	if err != nil {
		logger.Errorf("build demo table: %s", errors.ErrorStack(err))
		os.Exit(1)
	}

	queries := []demoQuery{
		{title: "customer = 7", cond: rangeopt.Cmp("customer", rangeopt.OpEQ, rangeopt.Int(7))},
		{title: "customer IN (3, 5) AND amount > 900", cond: rangeopt.And(
			rangeopt.In("customer", rangeopt.Int(3), rangeopt.Int(5)),
			rangeopt.Cmp("amount", rangeopt.OpGT, rangeopt.Int(900)))},
		{title: "customer = 3 OR status = 5", cond: rangeopt.Or(
			rangeopt.Cmp("customer", rangeopt.OpEQ, rangeopt.Int(3)),
			rangeopt.Cmp("status", rangeopt.OpEQ, rangeopt.Int(5)))},
		{title: "name BETWEEN 'c10' AND 'c12'", cond: rangeopt.Between("name", rangeopt.Str("c10"), rangeopt.Str("c12"))},
		{title: "status IS NOT NULL AND status NOT BETWEEN 5 AND 90 AND customer NOT IN (1, 2)", cond: rangeopt.And(
			rangeopt.IsNotNull("status"),
			rangeopt.NotBetween("status", rangeopt.Int(5), rangeopt.Int(90)),
			rangeopt.NotIn("customer", rangeopt.Int(1), rangeopt.Int(2)))},
		{title: "amount < 100", cond: rangeopt.Cmp("amount", rangeopt.OpLT, rangeopt.Int(100))},
		{title: "id < 10 AND id > 20", cond: rangeopt.And(
			rangeopt.Cmp("id", rangeopt.OpLT, rangeopt.Int(10)),
			rangeopt.Cmp("id", rangeopt.OpGT, rangeopt.Int(20)))},
		{
			title: "SELECT customer, MIN(amount), MAX(amount) WHERE customer < 5 GROUP BY customer",
			cond:  rangeopt.Cmp("customer", rangeopt.OpLT, rangeopt.Int(5)),
			group: &rangeopt.GroupMinMaxQuery{GroupBy: []string{"customer"}, Arg: "amount", Funcs: rangeopt.AggMin | rangeopt.AggMax},
		},
	}
	ctx := context.Background()
	for _, q := range queries {
		if err := runQuery(ctx, tbl, config.OptimizerSwitch(), q); err != nil {
			logger.Errorf("%s: %s", q.title, errors.ErrorStack(err))
		}
	}
}

// buildOrders orders(id PK, customer INT, status INT NULL, amount INT, name VARCHAR(16))
func buildOrders(rows int64) (*memstore.Table, error) {
	share, err := metadata.NewTableShare("orders",
		metadata.ColumnDef{Name: "id", Type: metadata.TypeInt},
		metadata.ColumnDef{Name: "customer", Type: metadata.TypeInt},
		metadata.ColumnDef{Name: "status", Type: metadata.TypeInt, Nullable: true},
		metadata.ColumnDef{Name: "amount", Type: metadata.TypeInt},
		metadata.ColumnDef{Name: "name", Type: metadata.TypeVarchar, Length: 16, Collation: charset.Latin1},
	)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, def := range []metadata.IndexDef{
		{Name: "PRIMARY", Primary: true, Parts: []metadata.IndexPartDef{{Column: "id"}}},
		{Name: "idx_customer_amount", Parts: []metadata.IndexPartDef{{Column: "customer"}, {Column: "amount"}}},
		{Name: "idx_status", Parts: []metadata.IndexPartDef{{Column: "status"}}},
		{Name: "idx_name", Parts: []metadata.IndexPartDef{{Column: "name"}}},
	} {
		if _, err := share.AddIndex(def); err != nil {
			return nil, errors.Trace(err)
		}
	}
	tbl := memstore.NewTable(share, memstore.WithClusteredPrimaryKey())
	for id := int64(1); id <= rows; id++ {
		status := metadata.NewIntDatum(id % 97)
		if id%31 == 0 {
			status = metadata.NullDatum()
		}
		name := metadata.NewStringDatum(fmt.Sprintf("c%d", id%113))
		if _, err := tbl.InsertValues(metadata.NewIntDatum(id), metadata.NewIntDatum(id%113), status,
			metadata.NewIntDatum(id*7%1000), name); err != nil {
			return nil, errors.Annotatef(err, "row %d", id)
		}
	}
	logger.Infof("table %s loaded with %d rows", share.Name, tbl.Rows())
	return tbl, nil
}

func runQuery(ctx context.Context, tbl *memstore.Table, sw conf.OptimizerSwitch, q demoQuery) error {
	color.Cyan("==> %s", q.title)
	p := rangeopt.NewParam(tbl.Share(), sw)
	p.Stats = tbl
	h := tbl.Open()

	tree, err := p.Analyze(q.cond)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("    sel tree: %s\n", tree)

	var rp *rangeopt.ReadPlan
	if q.group != nil {
		rp, err = p.ChooseGroupReadPlan(q.group, q.cond, tree, h)
		if err != nil {
			return errors.Trace(err)
		}
	} else {
		rp = p.ChooseReadPlan(tree, h)
	}
	color.Green("    plan: %s", rp.Describe(tbl.Share()))

	v := engine.NewVolcanoExecutor(h)
	if err := v.BuildPlan(ctx, rp, q.cond, quick.BuildOptions{Switch: sw}); err != nil {
		return errors.Trace(err)
	}
	result, err := v.Execute(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if q.group != nil {
		customer := tbl.Share().Field("customer")
		for _, r := range result {
			fmt.Printf("    customer=%d min=%d max=%d\n", customer.Val(r.Record).GetInt64(), r.Min.GetInt64(), r.Max.GetInt64())
		}
	}
	color.Yellow("    %d rows via %s", len(result), v.Describe())
	return nil
}
