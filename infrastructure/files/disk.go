package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"chatsync/internal/entity"

	"github.com/google/uuid"
)

// DiskStore writes attachments under a local directory and serves them
// by URL path. Names are random so uploads cannot collide or be
// guessed from the original file name.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: baseURL}, nil
}

func (s *DiskStore) Save(_ context.Context, attachments []entity.Attachment) ([]string, []string, error) {
	urls := make([]string, 0, len(attachments))
	contentTypes := make([]string, 0, len(attachments))

	for _, attachment := range attachments {
		name := uuid.New().String() + filepath.Ext(attachment.Name)
		path := filepath.Join(s.dir, name)
		if err := os.WriteFile(path, attachment.Data, 0o644); err != nil {
			return nil, nil, fmt.Errorf("write attachment: %w", err)
		}
		urls = append(urls, s.baseURL+"/"+name)
		contentTypes = append(contentTypes, attachment.ContentType)
	}
	return urls, contentTypes, nil
}
