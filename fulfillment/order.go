package fulfillment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Order 一笔待履行的订单。
type Order struct {
	OrderID          string   `json:"order_id"`
	Item             string   `json:"item"`
	Quantity         int      `json:"quantity"`
	CreditCardExpiry string   `json:"credit_card_expiry"` // MM/YY
	ItemsToPack      []string `json:"items_to_pack,omitempty"`
	// InventoryDown 模拟库存服务降级：前几次预留尝试失败
	InventoryDown bool `json:"inventory_down,omitempty"`
	// Feedback 审批驳回时由编排器注入的反馈文本
	Feedback string `json:"feedback,omitempty"`
}

// 已注册的任务类型
const (
	TaskTypePayment   = "fulfillment.process_payment"
	TaskTypeInventory = "fulfillment.reserve_inventory"
	TaskTypePacking   = "fulfillment.pack_order_items"
	TaskTypeDelivery  = "fulfillment.deliver_order"
)

// parseExpiry 解析 MM/YY 形式的信用卡有效期。
func parseExpiry(expiry string) (month, year int, err error) {
	parts := strings.Split(expiry, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expiry must be MM/YY, got %q", expiry)
	}
	month, err = strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid expiry month %q", parts[0])
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil || year < 0 {
		return 0, 0, fmt.Errorf("invalid expiry year %q", parts[1])
	}
	return month, year + 2000, nil
}

// expired 判断有效期是否早于 now 所在月份。
func expired(month, year int, now time.Time) bool {
	if year < now.Year() {
		return true
	}
	return year == now.Year() && month < int(now.Month())
}
