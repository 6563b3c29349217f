package seed

import (
	channeldomain "github.com/smallbiznis/chatlink/internal/channel/domain"
	linkdomain "github.com/smallbiznis/chatlink/internal/link/domain"
	subscriptiondomain "github.com/smallbiznis/chatlink/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/chatlink/internal/tier/domain"
	usagedomain "github.com/smallbiznis/chatlink/internal/usage/domain"
	verificationdomain "github.com/smallbiznis/chatlink/internal/verification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate syncs the schema for deployments that do not run the SQL
// migrations (sqlite local runs, test databases).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&channeldomain.Channel{},
		&verificationdomain.ChannelVerification{},
		&linkdomain.UserChannel{},
		&usagedomain.UsageRecord{},
		&tierdomain.TierFeatures{},
		&subscriptiondomain.Subscription{},
	)
}

// EnsureDefaultChannels inserts the built-in messaging surfaces, leaving any
// administrator edits in place.
func EnsureDefaultChannels(db *gorm.DB) error {
	channels := []channeldomain.Channel{
		{ID: "telegram", DisplayName: "Telegram", MatchMethod: channeldomain.MatchMethodUsername, Active: true},
		{ID: "whatsapp", DisplayName: "WhatsApp", MatchMethod: channeldomain.MatchMethodPhoneNumber, Active: true},
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&channels).Error
}
