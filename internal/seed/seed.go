// Package seed populates a development database with realistic workspaces,
// users, conversations, and message traffic.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"workroom/internal/models"
	"workroom/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const seedPassword = "password123"

var sampleMessages = []string{
	"Morning! Did the client sign off on the latest revision?",
	"Pushing the fix now, should be live in a few minutes.",
	"Can someone take a look at the invoice draft before I send it?",
	"The new board layout is up, feedback welcome.",
	"I'll be out this afternoon, ping me on anything urgent.",
	"Call went well, they want the extra deliverable by Friday.",
	"Uploading the assets from the shoot now.",
	"Heads up: staging is down for about ten minutes.",
	"That copy change is approved, go ahead and publish.",
	"Who has context on the March retainer scope?",
}

// Run wipes nothing and inserts a demo workspace with users, client spaces,
// flows, conversations, and a spread of messages. Safe to run repeatedly;
// each run creates a fresh workspace.
func Run(db *gorm.DB, userCount, messageCount int) error {
	if userCount < 2 {
		userCount = 8
	}
	if messageCount <= 0 {
		messageCount = 200
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	company := gofakeit.Company()
	workspace := models.Workspace{
		Name: company,
		Slug: fmt.Sprintf("%s-%d", gofakeit.Username(), time.Now().Unix()),
	}
	if err := db.Create(&workspace).Error; err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	log.Printf("Seeding workspace %q (id %d)", workspace.Name, workspace.ID)

	users := make([]models.User, 0, userCount)
	for i := 0; i < userCount; i++ {
		u := models.User{
			WorkspaceID: workspace.ID,
			Email:       fmt.Sprintf("%d-%s", workspace.ID, gofakeit.Email()),
			DisplayName: gofakeit.Name(),
			Password:    string(hash),
			Avatar:      gofakeit.ImageURL(128, 128),
			IsAdmin:     i == 0,
		}
		if err := db.Create(&u).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
	}

	clientSpaces := make([]models.ClientSpace, 0, 3)
	for i := 0; i < 3; i++ {
		cs := models.ClientSpace{WorkspaceID: workspace.ID, Name: gofakeit.Company()}
		if err := db.Create(&cs).Error; err != nil {
			return fmt.Errorf("create client space: %w", err)
		}
		clientSpaces = append(clientSpaces, cs)
	}

	flows := make([]models.Flow, 0, 2)
	for i := 0; i < 2; i++ {
		f := models.Flow{WorkspaceID: workspace.ID, Name: gofakeit.BuzzWord() + " pipeline"}
		if err := db.Create(&f).Error; err != nil {
			return fmt.Errorf("create flow: %w", err)
		}
		flows = append(flows, f)
	}

	convs, err := seedConversations(db, workspace.ID, users, clientSpaces, flows)
	if err != nil {
		return err
	}

	if err := seedMessages(db, convs, users, clientSpaces, messageCount); err != nil {
		return err
	}

	log.Printf("Seed complete: %d users, %d conversations, %d messages (password %q)",
		len(users), len(convs), messageCount, seedPassword)
	return nil
}

func seedConversations(
	db *gorm.DB, workspaceID uint,
	users []models.User, clientSpaces []models.ClientSpace, flows []models.Flow,
) ([]models.Conversation, error) {
	var convs []models.Conversation

	create := func(c models.Conversation, memberIDs []uint) error {
		if err := db.Create(&c).Error; err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		for i, uid := range memberIDs {
			role := models.MemberRoleMember
			if i == 0 {
				role = models.MemberRoleOwner
			}
			m := models.ConversationMember{ConversationID: c.ID, UserID: uid, Role: role}
			if err := db.Create(&m).Error; err != nil {
				return fmt.Errorf("create membership: %w", err)
			}
		}
		convs = append(convs, c)
		return nil
	}

	allIDs := make([]uint, len(users))
	for i, u := range users {
		allIDs[i] = u.ID
	}

	for _, f := range flows {
		flowID := f.ID
		if err := create(models.Conversation{
			WorkspaceID:     workspaceID,
			ChatType:        models.ChatTypeFlow,
			FlowID:          &flowID,
			CreatedByUserID: users[0].ID,
		}, allIDs); err != nil {
			return nil, err
		}
	}

	for _, cs := range clientSpaces {
		csID := cs.ID
		for _, ct := range []models.ChatType{models.ChatTypeClientInternal, models.ChatTypeClientExternal} {
			if err := create(models.Conversation{
				WorkspaceID:     workspaceID,
				ChatType:        ct,
				ClientSpaceID:   &csID,
				CreatedByUserID: users[0].ID,
			}, allIDs[:4]); err != nil {
				return nil, err
			}
		}
	}

	// A few direct pairs in canonical low/high order.
	for i := 1; i < len(users) && i <= 4; i++ {
		low, high := users[0].ID, users[i].ID
		if low > high {
			low, high = high, low
		}
		if err := create(models.Conversation{
			WorkspaceID:     workspaceID,
			ChatType:        models.ChatTypeDirect,
			UserLowID:       &low,
			UserHighID:      &high,
			CreatedByUserID: users[0].ID,
		}, []uint{low, high}); err != nil {
			return nil, err
		}
	}

	// One group conversation.
	if err := create(models.Conversation{
		WorkspaceID:     workspaceID,
		ChatType:        models.ChatTypeDirect,
		IsGroup:         true,
		Name:            gofakeit.HackerNoun() + " crew",
		Description:     gofakeit.Sentence(8),
		CreatedByUserID: users[0].ID,
	}, allIDs[:5]); err != nil {
		return nil, err
	}

	return convs, nil
}

func seedMessages(db *gorm.DB, convs []models.Conversation, users []models.User, clientSpaces []models.ClientSpace, total int) error {
	displayNames := make(map[string]uint, len(users))
	for _, u := range users {
		displayNames[u.DisplayName] = u.ID
	}
	clientNames := make(map[string]uint, len(clientSpaces))
	for _, cs := range clientSpaces {
		clientNames[cs.Name] = cs.ID
	}

	for i := 0; i < total; i++ {
		conv := convs[rand.Intn(len(convs))]
		author := users[rand.Intn(len(users))]

		content := sampleMessages[rand.Intn(len(sampleMessages))]
		// Sprinkle in mentions so the annotation tables get traffic.
		switch rand.Intn(10) {
		case 0, 1:
			content = "@" + users[rand.Intn(len(users))].DisplayName + " " + content
		case 2:
			content = "@client:" + clientSpaces[rand.Intn(len(clientSpaces))].Name + " " + content
		}

		msg := models.Message{
			ConversationID: conv.ID,
			AuthorID:       author.ID,
			Content:        content,
			DeliveryStatus: models.DeliverySent,
			CreatedAt:      time.Now().Add(-time.Duration(total-i) * time.Minute),
		}
		if err := db.Create(&msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		for _, pm := range service.ParseMentions(content, displayNames, clientNames) {
			m := models.Mention{
				MessageID:  msg.ID,
				TargetType: pm.Kind,
				TargetID:   pm.TargetID,
				RawText:    pm.RawText,
			}
			if err := db.Create(&m).Error; err != nil {
				return fmt.Errorf("create mention: %w", err)
			}
		}
	}
	return nil
}
