// Package report 将回放结果渲染为文本摘要，供终端查看。
// 估值序列本身保留在 Result 上，图表绘制由外部协作方完成。
package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"portfolio-replay/internal/market"
	"portfolio-replay/internal/replay"
)

// Render 输出最终持仓、账户概览与执行统计。
func Render(w io.Writer, portfolio string, res replay.Result, prices *market.PriceSet, initialCash float64) error {
	fmt.Fprintf(w, "\n组合: %s\n", portfolio)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "标的\t数量\t成本价\t现价\t市值\t盈亏")

	var holdingsValue float64
	for _, name := range res.Final.Instruments() {
		pos := res.Final.Positions[name]
		var last float64
		if series, ok := prices.Series(name); ok {
			if bar, found := series.LastBarOnOrBefore(lastDate(res)); found {
				last = bar.Close
			}
		}
		value := pos.Size * last
		holdingsValue += value
		fmt.Fprintf(tw, "%s\t%.0f\t%.4f\t%.4f\t%.2f\t%.2f\n",
			name, pos.Size, pos.AvgCost, last, value, (last-pos.AvgCost)*pos.Size)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: 渲染持仓表失败: %w", err)
	}

	total := res.Final.Cash + holdingsValue
	fmt.Fprintf(w, "\n持仓市值: %.2f\n", holdingsValue)
	fmt.Fprintf(w, "现金余额: %.2f\n", res.Final.Cash)
	fmt.Fprintf(w, "账户总值: %.2f\n", total)
	fmt.Fprintf(w, "总收益:   %.2f (%.2f%%)\n", total-initialCash, (total-initialCash)/initialCash*100)
	fmt.Fprintf(w, "累计佣金: %.2f\n", res.CommissionPaid)
	fmt.Fprintf(w, "成交 %d 笔，截断 %d 笔，跳过 %d 笔，未解决 %d 笔\n",
		res.Executed, res.Capped, res.Skipped, len(res.Unresolved))

	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "警告: %s\n", warning)
	}
	return nil
}

func lastDate(res replay.Result) time.Time {
	if n := len(res.Valuation); n > 0 {
		return res.Valuation[n-1].Date
	}
	return time.Time{}
}
