package gdrive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const textMimeType = "text/plain"

// Publisher uploads RTTM and UEM files to a Drive folder. A file that
// already exists in the folder under the same name is updated in place.
type Publisher struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewPublisher(ctx context.Context, credPath, folderID string) (*Publisher, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return newPublisher(ctx, folderID, option.WithCredentials(config))
}

func newPublisher(ctx context.Context, folderID string, opts ...option.ClientOption) (*Publisher, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Publisher{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// Publish uploads localPath under its base name.
func (p *Publisher) Publish(ctx context.Context, localPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := filepath.Base(localPath)

	fileID, err := p.lookup(ctx, name)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID != "" {
		_, err = p.service.Files.Update(fileID, &drive.File{}).Media(f).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update %s: %w", name, err)
		}
		return nil
	}

	created, err := p.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: textMimeType,
		Parents:  []string{p.folderID},
	}).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create %s: %w", name, err)
	}

	p.fileIDs[name] = created.Id
	return nil
}

func (p *Publisher) lookup(ctx context.Context, name string) (string, error) {
	if id, ok := p.fileIDs[name]; ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(p.folderID))
	list, err := p.service.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive list %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}

	p.fileIDs[name] = list.Files[0].Id
	return list.Files[0].Id, nil
}

func escapeQuery(v string) string {
	return strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `'`, `\'`)
}
