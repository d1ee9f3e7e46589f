//go:build !debug

package wire

import (
	"context"

	"github.com/chatwire/chatserver/internal/v1/logging"
)

// fault surfaces programming errors as FAILED in release builds.
func fault(msg string) {
	logging.Error(context.Background(), "programming fault in codec: "+msg)
}
