package models

import (
	"github.com/shopspring/decimal"
)

func init() {
	// 金额以 JSON 数字输出
	decimal.MarshalJSONWithoutQuotes = true
}

// StroopDecimals 原生资产最小单位的小数位数
const StroopDecimals = 7

// ToStroops 将金额转换为 stroop，超出精度的部分四舍五入
func ToStroops(amount decimal.Decimal) int64 {
	return amount.Shift(StroopDecimals).Round(0).IntPart()
}

// FromStroops 将 stroop 转换为金额
func FromStroops(stroops int64) decimal.Decimal {
	return decimal.New(stroops, -StroopDecimals)
}

// AllModels 返回需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Balance{},
		&UsageRecord{},
		&Conversation{},
		&Message{},
	}
}
