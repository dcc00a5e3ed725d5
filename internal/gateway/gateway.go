package gateway

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rahul/vidya/internal/agent"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// stageFile downloads an attachment to a local staging directory so the
// ingestion step can read it. The caller owns cleanup of the returned path.
func stageFile(url, name string) (agent.FileRef, error) {
	dir := filepath.Join(os.TempDir(), "vidya-uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return agent.FileRef{}, err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return agent.FileRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return agent.FileRef{}, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "*-"+filepath.Base(name))
	if err != nil {
		return agent.FileRef{}, err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return agent.FileRef{}, err
	}
	return agent.FileRef{Name: name, Path: f.Name()}, nil
}
