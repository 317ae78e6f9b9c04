package store

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// MemoryInfo is the subset of INFO memory used for pressure decisions.
type MemoryInfo struct {
	UsedBytes int64
	MaxBytes  int64
	// FromSystem is set when the store reports no maxmemory and MaxBytes comes
	// from total_system_memory instead.
	FromSystem bool
}

// Ratio returns UsedBytes/MaxBytes, or 0 when the limit is unknown.
func (i MemoryInfo) Ratio() float64 {
	if i.MaxBytes <= 0 {
		return 0
	}
	return float64(i.UsedBytes) / float64(i.MaxBytes)
}

// MemoryInfo queries INFO memory.
func (m *Manager) MemoryInfo(ctx context.Context) (MemoryInfo, error) {
	var raw string
	err := m.Execute(ctx, "info memory", func(ctx context.Context, c *redis.Client) error {
		s, err := c.Info(ctx, "memory").Result()
		raw = s
		return err
	})
	if err != nil {
		return MemoryInfo{}, err
	}
	return ParseMemoryInfo(raw), nil
}

// ParseMemoryInfo reads used_memory and maxmemory from an INFO payload.
func ParseMemoryInfo(raw string) MemoryInfo {
	fields := map[string]int64{}
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			continue
		}
		fields[k] = n
	}

	info := MemoryInfo{UsedBytes: fields["used_memory"], MaxBytes: fields["maxmemory"]}
	if info.MaxBytes == 0 {
		info.MaxBytes = fields["total_system_memory"]
		info.FromSystem = info.MaxBytes > 0
	}
	return info
}
