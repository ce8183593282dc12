package xcache

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"
)

// =============================================================================
// 空值标记
// =============================================================================

// 空值标记是长度为 0 的值，表示"已确认记录不存在"。
// 任何编解码器对真实值的输出都非空，二者不会混淆。
var nullMarker = []byte{}

func isNullMarker(data []byte) bool {
	return len(data) == 0
}

// =============================================================================
// 逻辑过期包装
// =============================================================================

// logicalEntry 逻辑过期记录的存储格式：
//
//	{"data": <值>, "logicalExpireAt": "2006-01-02T15:04:05.999999999Z07:00"}
//
// JSONCodec 的输出直接内嵌为 data；其他编解码器的输出
// 以 base64 字符串写入 data，并标记 binary=true。
type logicalEntry struct {
	Data            json.RawMessage `json:"data"`
	LogicalExpireAt time.Time       `json:"logicalExpireAt"`
	Binary          bool            `json:"binary,omitempty"`
}

// encodeLogical 将已编码的值包装为逻辑过期记录。
func encodeLogical(payload []byte, expireAt time.Time, embed bool) ([]byte, error) {
	entry := logicalEntry{LogicalExpireAt: expireAt.UTC()}
	if embed && json.Valid(payload) {
		entry.Data = payload
	} else {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		entry.Data = b
		entry.Binary = true
	}
	return json.Marshal(entry)
}

// decodeLogical 解出原始编码值与逻辑过期时间。
func decodeLogical(data []byte) ([]byte, time.Time, error) {
	var entry logicalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, time.Time{}, err
	}
	if len(entry.Data) == 0 || entry.LogicalExpireAt.IsZero() {
		return nil, time.Time{}, fmt.Errorf("incomplete logical entry")
	}
	if !entry.Binary {
		return entry.Data, entry.LogicalExpireAt, nil
	}
	var payload []byte
	if err := json.Unmarshal(entry.Data, &payload); err != nil {
		return nil, time.Time{}, err
	}
	return payload, entry.LogicalExpireAt, nil
}

// =============================================================================
// 等待抖动
// =============================================================================

// jitter 返回 base 上下浮动 retryJitter 比例的等待时间。
func jitter(base time.Duration) time.Duration {
	delta := float64(base) * retryJitter * (2*rand.Float64() - 1)
	wait := base + time.Duration(delta)
	if wait <= 0 {
		return base
	}
	return wait
}
