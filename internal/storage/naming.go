package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"twmailer/backend/internal/domain"
)

// 邮件文件名格式: <sender>_msg_<unixMillis>.txt
const (
	filenameInfix  = "_msg_"
	filenameSuffix = ".txt"
)

// MessageFilename 生成邮件文件名
func MessageFilename(sender string, ts time.Time) string {
	return fmt.Sprintf("%s%s%d%s", sender, filenameInfix, ts.UnixMilli(), filenameSuffix)
}

// ParseFilename 从文件名中解析发件人和时间戳，格式不符时 ok 为 false
func ParseFilename(name string) (sender string, ts time.Time, ok bool) {
	if !strings.HasSuffix(name, filenameSuffix) {
		return "", time.Time{}, false
	}
	stem := strings.TrimSuffix(name, filenameSuffix)
	idx := strings.LastIndex(stem, filenameInfix)
	if idx <= 0 {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(stem[idx+len(filenameInfix):], 10, 64)
	if err != nil || ms < 0 {
		return "", time.Time{}, false
	}
	return stem[:idx], time.UnixMilli(ms), true
}

// SortSummaries 按 (时间戳, 文件名) 排序并重新编号，序号从 1 开始。
//
// 文件名中没有时间戳的条目排在最后，按文件名排序。
func SortSummaries(summaries []domain.MessageSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		aZero, bZero := a.Timestamp.IsZero(), b.Timestamp.IsZero()
		if aZero != bZero {
			return bZero
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Filename < b.Filename
	})
	for i := range summaries {
		summaries[i].Ordinal = i + 1
	}
}

// Pick 按序号从快照中取条目，越界返回 domain.ErrInvalidOrdinal
func Pick(summaries []domain.MessageSummary, ordinal int) (domain.MessageSummary, error) {
	if ordinal < 1 || ordinal > len(summaries) {
		return domain.MessageSummary{}, fmt.Errorf("%w: %d (have %d)", domain.ErrInvalidOrdinal, ordinal, len(summaries))
	}
	return summaries[ordinal-1], nil
}
