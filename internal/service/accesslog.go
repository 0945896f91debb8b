package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/repository"
)

// AccessLog appends download events. It records authorization outcomes, it
// never produces them; failures are logged and swallowed so a full audit
// table can never break downloads.
type AccessLog struct {
	downloads repository.DownloadEventRepository
	logger    *zap.Logger
}

func NewAccessLog(downloads repository.DownloadEventRepository, logger *zap.Logger) *AccessLog {
	return &AccessLog{downloads: downloads, logger: logger}
}

// Record appends one access. Called for successful and partial downloads
// alike, to keep track of every possible access to the bytes.
func (l *AccessLog) Record(ctx context.Context, accessType domain.AccessType, tag, fileName, fileHash, clientIP string, startTime time.Time) {
	_, err := l.downloads.Create(ctx, domain.DownloadEvent{
		AccessType:   accessType,
		Tag:          tag,
		FileName:     fileName,
		FileHash:     fileHash,
		DownloadTime: startTime,
		ClientIP:     clientIP,
	})
	if err != nil {
		l.log().Error("failed to record download event",
			zap.String("file", fileName),
			zap.String("tag", tag),
			zap.Error(err),
		)
	}
}

func (l *AccessLog) log() *zap.Logger {
	if l != nil && l.logger != nil {
		return l.logger
	}
	return zap.L()
}
