package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// MirrorStatus reports the state of the optional Redis mirror.
type MirrorStatus interface {
	Ping(ctx context.Context) error
	Dirty() bool
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	AllowedHosts []string // Host headers allowed to access the server
	AllowedCIDRS []string // IPs allowed to call mutating endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)

	Store *bookmarks.Store // owned by Loop: only touch it inside Loop.Do
	Loop  *bookmarks.Loop

	ImportTrigger         chan struct{} // triggers a homepage import (nil if import disabled)
	ImportBurst           int           // netscape import rate limit burst, per IP
	ImportRefillPerMinute int           // netscape import rate limit refill, per IP
	MaxImportBytes        int64         // max netscape upload size

	Mirror MirrorStatus // nil if the mirror is disabled
}
