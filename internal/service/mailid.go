package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewMailID 生成时间有序的全局唯一邮件 ID。
//
// 格式: YYYYMMDD_HHMMSS_<12-hex>（UTC）。前缀保证同一秒内的 ID
// 按时间可排序，随机后缀保证全局唯一。
func NewMailID(t time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 失败时退回到纳秒时间戳，唯一性由时间前缀兜底
		return fmt.Sprintf("%s_%012x", t.UTC().Format("20060102_150405"), t.UnixNano()&0xffffffffffff)
	}
	return fmt.Sprintf("%s_%s", t.UTC().Format("20060102_150405"), hex.EncodeToString(buf))
}
