package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"photoframe/internal/database"
)

// Photo extensions probed when pairing a standalone video with an already
// ingested still. Order matters only for logging; at most one sibling
// should exist.
var livePhotoSiblingExts = []string{".HEIC", ".heic", ".JPG", ".jpg", ".JPEG", ".jpeg"}

// processLivePhotoVideo pairs an uploaded video with the still photo that
// shares its basename and marks that photo as a live photo. A video with
// no matching photo fails the task so the orphan gets retried once the
// photo lands.
func (p *Processor) processLivePhotoVideo(ctx context.Context, task *database.Task) error {
	videoKey := task.Payload.StorageKey
	if videoKey == "" {
		return errors.New("live photo task has no storage key")
	}

	provider, err := p.storage.Provider()
	if err != nil {
		return err
	}

	p.log.Info("Start processing live photo video task %d: %s", task.ID, videoKey)

	done, err := p.stage(ctx, task.ID, StageLivePhoto)
	if err != nil {
		return err
	}
	defer done()

	if _, err := p.waitForStorageObject(ctx, provider, videoKey, task.ID); err != nil {
		return err
	}

	dir := path.Dir(videoKey)
	base := strings.TrimSuffix(path.Base(videoKey), path.Ext(videoKey))

	var matched *database.Photo
	for _, ext := range livePhotoSiblingExts {
		photoKey := base + ext
		if dir != "." {
			photoKey = dir + "/" + photoKey
		}
		photo, err := p.db.GetPhotoByStorageKey(ctx, photoKey)
		if err != nil {
			return err
		}
		if photo != nil {
			p.log.Info("[%d] found matching photo for live photo video: %s", task.ID, photoKey)
			matched = photo
			break
		}
	}

	if matched == nil {
		return fmt.Errorf("no matching photo found for live photo video %s", videoKey)
	}

	if err := p.db.MarkPhotoLive(ctx, matched.ID, provider.PublicURL(videoKey), videoKey); err != nil {
		return err
	}
	p.log.Info("Live photo video task %d processed successfully, updated photo %s", task.ID, matched.ID)
	return nil
}
