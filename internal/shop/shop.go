package shop

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeyPrefix 店铺缓存 key 前缀。
const KeyPrefix = "cache:shop:"

var (
	// ErrMissingID 更新时未提供店铺 ID。
	ErrMissingID = errors.New("shop: id is required")
	// ErrNotFound 店铺不存在。
	ErrNotFound = errors.New("shop: not found")
	// ErrInvalidStrategy 未知的读取策略。
	ErrInvalidStrategy = errors.New("shop: invalid strategy")
	// ErrSoldOut 库存不足。
	ErrSoldOut = errors.New("shop: sold out")
	// ErrBusy 同一店铺的占位操作正在进行。
	ErrBusy = errors.New("shop: busy, try again")
)

// Shop 店铺记录。
type Shop struct {
	ID        int64     `json:"id" bson:"_id" msgpack:"id" koanf:"id"`
	Name      string    `json:"name" bson:"name" msgpack:"name" koanf:"name"`
	TypeID    int64     `json:"typeId" bson:"type_id" msgpack:"typeId" koanf:"type_id"`
	Area      string    `json:"area,omitempty" bson:"area,omitempty" msgpack:"area,omitempty" koanf:"area"`
	Address   string    `json:"address" bson:"address" msgpack:"address" koanf:"address"`
	X         float64   `json:"x" bson:"x" msgpack:"x" koanf:"x"`
	Y         float64   `json:"y" bson:"y" msgpack:"y" koanf:"y"`
	AvgPrice  int64     `json:"avgPrice" bson:"avg_price" msgpack:"avgPrice" koanf:"avg_price"`
	Sold      int64     `json:"sold" bson:"sold" msgpack:"sold" koanf:"sold"`
	Stock     int64     `json:"stock" bson:"stock" msgpack:"stock" koanf:"stock"`
	Comments  int64     `json:"comments" bson:"comments" msgpack:"comments" koanf:"comments"`
	Score     int       `json:"score" bson:"score" msgpack:"score" koanf:"score"`
	OpenHours string    `json:"openHours,omitempty" bson:"open_hours,omitempty" msgpack:"openHours,omitempty" koanf:"open_hours"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" msgpack:"updatedAt" koanf:"updated_at"`
}

// Strategy 读取策略。
type Strategy string

const (
	// StrategyPassThrough 穿透保护：不存在的记录缓存空值。
	StrategyPassThrough Strategy = "pass"
	// StrategyMutex 互斥重建：未命中时只有持锁者回源。
	StrategyMutex Strategy = "mutex"
	// StrategyLogical 逻辑过期：过期条目先返回旧值，后台重建。
	StrategyLogical Strategy = "logical"
)

// ParseStrategy 解析策略名，大小写不敏感。
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyPassThrough, StrategyMutex, StrategyLogical:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q (want pass, mutex or logical)", ErrInvalidStrategy, s)
	}
}
