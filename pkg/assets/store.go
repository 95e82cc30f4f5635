// Package assets publishes generated images to ephemeral local storage and
// exposes them under a public base URL for a bounded time window.
package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/kamiyui/kamiyui/pkg/config"
	"github.com/kamiyui/kamiyui/pkg/logger"
	"github.com/kamiyui/kamiyui/pkg/utils"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

type Store struct {
	dir     string
	baseURL string
	ttl     time.Duration
}

func NewStore(cfg config.AssetsConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		ttl:     ttl,
	}, nil
}

// Save writes image bytes under a collision-free name derived from the
// owner, the purpose tag and the current time, and returns the public URL.
func (s *Store) Save(owner, purpose string, data []byte) (string, error) {
	ext := utils.ImageExtension(utils.DetectImageMIME(data))
	name := fmt.Sprintf("%s_%s_%s_%s%s",
		sanitizeName(owner),
		sanitizeName(purpose),
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
		ext,
	)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", name, err)
	}
	return s.baseURL + "/assets/" + name, nil
}

// StartSweeper deletes assets older than the TTL on the given cron
// schedule. It returns immediately; the sweep loop stops with ctx.
func (s *Store) StartSweeper(ctx context.Context, schedule string) {
	if schedule == "" {
		return
	}
	go func() {
		for {
			next, err := gronx.NextTick(schedule, false)
			if err != nil {
				logger.ErrorCF("assets", "Invalid cleanup schedule, sweeper stopped", map[string]interface{}{
					"schedule": schedule, "error": err.Error(),
				})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
			}
			s.sweep()
		}
	}()
}

func (s *Store) sweep() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.WarnCF("assets", "Sweep failed to read dir", map[string]interface{}{"error": err.Error()})
		return
	}
	cutoff := time.Now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		logger.InfoCF("assets", "Swept expired assets", map[string]interface{}{"removed": removed})
	}
}

func sanitizeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return "anon"
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
