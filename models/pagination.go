package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type PageInfo struct {
	StartCursor string `json:"start_cursor"`
	EndCursor   string `json:"end_cursor"`
	HasNextPage *bool  `json:"has_next_page,omitempty"`
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// DecodeCompositeCursor splits a cursor made by EncodeCompositeCursor.
// Anything unreadable decodes to the zero time and id 0.
func DecodeCompositeCursor(cursor *string) (time.Time, int) {
	if cursor == nil || *cursor == "" {
		return time.Time{}, 0
	}

	decoded, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return time.Time{}, 0
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return time.Time{}, 0
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, 0
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, 0
	}
	return t, id
}

func EncodeCompositeCursor(date time.Time, id int) string {
	cursor := fmt.Sprintf("%s|%d", date.Format(time.RFC3339Nano), id)
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}
