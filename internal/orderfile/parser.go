// Package orderfile 解析决策批次的 CSV 订单文件。
//
// 每行为 {instrument, side, quantity, asset_class}；方向标记与标的代码的
// 校验发生在写入账本之前，hold 行直接忽略。原始系统的 Excel 解析不在
// 本模块范围内，CSV 是对等的最小摄入格式。
package orderfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"portfolio-replay/internal/ledger"
)

var bareCodePattern = regexp.MustCompile(`^\d{4}$`)

// NormalizeTicker 规范化标的代码：四位纯数字代码补全 .HK 市场后缀，
// 其余原样返回（允许任意市场后缀约定）。
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.TrimSpace(raw)
	if ticker == "" {
		return "", &ledger.ValidationError{Field: "instrument", Reason: "标的代码不能为空"}
	}
	if bareCodePattern.MatchString(ticker) {
		return ticker + ".HK", nil
	}
	return strings.ToUpper(ticker), nil
}

// Parse 从 CSV 读取一个决策批次。
// 首行为表头 instrument,side,quantity[,asset_class]；hold 行跳过；
// 任何一行非法都会使整个批次解析失败，保证不产生部分写入。
func Parse(r io.Reader) ([]ledger.Instruction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("orderfile: 读取订单文件失败: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("orderfile: 订单文件没有数据行")
	}

	var instructions []ledger.Instruction
	for i, record := range records[1:] {
		line := i + 2
		if len(record) < 3 {
			return nil, fmt.Errorf("orderfile: 第%d行字段不足", line)
		}

		sideToken := strings.TrimSpace(record[1])
		if strings.EqualFold(sideToken, "hold") {
			continue
		}
		side, err := ledger.ParseSide(sideToken)
		if err != nil {
			return nil, fmt.Errorf("orderfile: 第%d行: %w", line, err)
		}

		instrument, err := NormalizeTicker(record[0])
		if err != nil {
			return nil, fmt.Errorf("orderfile: 第%d行: %w", line, err)
		}

		quantity, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("orderfile: 第%d行数量解析失败: %w", line, err)
		}

		assetClass := "Stock"
		if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
			assetClass = strings.TrimSpace(record[3])
		}

		ins := ledger.Instruction{
			Instrument: instrument,
			Side:       side,
			Quantity:   quantity,
			AssetClass: assetClass,
		}
		if err := ins.Validate(); err != nil {
			return nil, fmt.Errorf("orderfile: 第%d行: %w", line, err)
		}
		instructions = append(instructions, ins)
	}

	if len(instructions) == 0 {
		return nil, fmt.Errorf("orderfile: 订单文件没有有效指令")
	}
	return instructions, nil
}
