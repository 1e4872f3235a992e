package service

import (
	"context"
	"testing"

	"workroom/internal/database"
	"workroom/internal/models"
	"workroom/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testEnv wires the full service stack against an in-memory database.
type testEnv struct {
	db *gorm.DB

	userRepo repository.UserRepository
	wsRepo   repository.WorkspaceRepository
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	annRepo  repository.AnnotationRepository

	convSvc *ConversationService
	msgSvc  *MessageService
	annSvc  *AnnotationService

	workspace models.Workspace
	users     []models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	env := &testEnv{
		db:       db,
		userRepo: repository.NewUserRepository(db),
		wsRepo:   repository.NewWorkspaceRepository(db),
		convRepo: repository.NewConversationRepository(db),
		msgRepo:  repository.NewMessageRepository(db),
		annRepo:  repository.NewAnnotationRepository(db),
	}

	postProc := NewPostProcessor(env.annRepo, env.userRepo, env.wsRepo)
	env.convSvc = NewConversationService(env.convRepo, env.wsRepo, env.userRepo, db)
	env.msgSvc = NewMessageService(env.msgRepo, env.convRepo, env.wsRepo, env.userRepo, db, postProc)
	env.annSvc = NewAnnotationService(env.annRepo, env.msgRepo, env.convRepo)

	env.workspace = models.Workspace{Name: "Acme Studio", Slug: "acme-studio"}
	if err := db.Create(&env.workspace).Error; err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	names := []string{"Alice Chen", "Bob Park", "Carol Diaz"}
	for i, name := range names {
		u := models.User{
			WorkspaceID: env.workspace.ID,
			Email:       []string{"alice@acme.test", "bob@acme.test", "carol@acme.test"}[i],
			DisplayName: name,
			Password:    string(hash),
		}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("Failed to create user: %v", err)
		}
		env.users = append(env.users, u)
	}

	return env
}

// newDirectConv resolves (and therefore creates) a direct conversation
// between the first two users.
func (env *testEnv) newDirectConv(t *testing.T) *models.Conversation {
	t.Helper()
	conv, err := env.convSvc.ResolveDirectConversation(
		context.Background(), env.workspace.ID, env.users[0].ID, env.users[1].ID)
	if err != nil {
		t.Fatalf("Failed to resolve direct conversation: %v", err)
	}
	return conv
}

// sendMessage sends a plain text message as the given author.
func (env *testEnv) sendMessage(t *testing.T, convID, authorID uint, content string) *models.Message {
	t.Helper()
	msg, _, err := env.msgSvc.Send(context.Background(), SendMessageInput{
		WorkspaceID:    env.workspace.ID,
		ConversationID: convID,
		AuthorID:       authorID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	return msg
}
