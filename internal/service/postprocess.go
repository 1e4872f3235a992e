package service

import (
	"context"
	"time"

	"workroom/internal/models"
	"workroom/internal/observability"
	"workroom/internal/repository"
)

// PostProcessor runs the derived-data stages after a message is stored:
// mention extraction and attachment indexing. Stages are isolated; a failing
// stage is logged and counted but never surfaces to the sender, and the
// message itself is already durable by the time any stage runs.
type PostProcessor struct {
	annotationRepo repository.AnnotationRepository
	userRepo       repository.UserRepository
	wsRepo         repository.WorkspaceRepository
}

// NewPostProcessor returns a new PostProcessor.
func NewPostProcessor(
	annotationRepo repository.AnnotationRepository,
	userRepo repository.UserRepository,
	wsRepo repository.WorkspaceRepository,
) *PostProcessor {
	return &PostProcessor{
		annotationRepo: annotationRepo,
		userRepo:       userRepo,
		wsRepo:         wsRepo,
	}
}

// Dispatch runs post-processing on its own goroutine, detached from the
// request context so an early HTTP response cannot cancel it.
func (p *PostProcessor) Dispatch(workspaceID uint, msg *models.Message) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				observability.PostProcessingFailures.WithLabelValues("panic").Inc()
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.Process(ctx, workspaceID, msg)
	}()
}

// Process runs every stage in order. Exposed separately so tests can run the
// pipeline synchronously.
func (p *PostProcessor) Process(ctx context.Context, workspaceID uint, msg *models.Message) {
	fields := map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
	}
	observability.LogAsyncOperationStart(ctx, "message_post_process", fields)

	if err := p.extractMentions(ctx, workspaceID, msg); err != nil {
		observability.PostProcessingFailures.WithLabelValues("mentions").Inc()
		observability.LogAsyncOperationError(ctx, "message_post_process", err, fields)
	}
	p.indexAttachments(ctx, msg)

	observability.LogAsyncOperationEnd(ctx, "message_post_process", fields)
}

func (p *PostProcessor) extractMentions(ctx context.Context, workspaceID uint, msg *models.Message) error {
	if msg.Content == "" {
		return nil
	}

	users, err := p.userRepo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	displayNames := make(map[string]uint, len(users))
	for _, u := range users {
		displayNames[u.DisplayName] = u.ID
	}

	spaces, err := p.wsRepo.ListClientSpaces(ctx, workspaceID)
	if err != nil {
		return err
	}
	clientNames := make(map[string]uint, len(spaces))
	for _, cs := range spaces {
		clientNames[cs.Name] = cs.ID
	}

	parsed := ParseMentions(msg.Content, displayNames, clientNames)
	if len(parsed) == 0 {
		return nil
	}

	mentions := make([]models.Mention, 0, len(parsed))
	for _, m := range parsed {
		mentions = append(mentions, models.Mention{
			MessageID:  msg.ID,
			TargetType: m.Kind,
			TargetID:   m.TargetID,
			RawText:    m.RawText,
		})
	}

	return p.annotationRepo.CreateMentions(ctx, mentions)
}

// indexAttachments writes one media row per attachment. Each attachment is
// handled independently so one bad descriptor does not lose the rest.
func (p *PostProcessor) indexAttachments(ctx context.Context, msg *models.Message) {
	for _, att := range msg.Attachments {
		item := models.MediaItem{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			AttachmentID:   att.ID,
			URL:            att.URL,
			FileName:       att.FileName,
			MimeType:       att.MimeType,
			Kind:           models.ClassifyAttachment(att.MimeType),
		}
		if err := p.annotationRepo.CreateMediaItems(ctx, []models.MediaItem{item}); err != nil {
			observability.PostProcessingFailures.WithLabelValues("attachments").Inc()
			observability.LogAsyncOperationError(ctx, "attachment_index", err, map[string]interface{}{
				"message_id":    msg.ID,
				"attachment_id": att.ID,
			})
		}
	}
}
