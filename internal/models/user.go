package models

import (
	"time"

	"mediator/internal/protocol"
)

// User участник протокола, идентифицируется публичным ключом
type User struct {
	Pubkey       string    `gorm:"primaryKey;type:varchar(64)" json:"pubkey"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"isAdmin"`
	IsSolver     bool      `gorm:"not null;default:false;index" json:"isSolver"`
	IsBanned     bool      `gorm:"not null;default:false" json:"isBanned"`
	TradeIndex   int64     `gorm:"not null;default:0" json:"tradeIndex"`
	TotalReviews int64     `gorm:"not null;default:0" json:"totalReviews"`
	TotalRating  float64   `gorm:"not null;default:0" json:"totalRating"`
	LastRating   int       `gorm:"not null;default:0" json:"lastRating"`
	MaxRating    int       `gorm:"not null;default:0" json:"maxRating"`
	MinRating    int       `gorm:"not null;default:0" json:"minRating"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// AddRating учитывает новую оценку в репутации.
func (u *User) AddRating(r int) {
	if u.TotalReviews == 0 {
		u.MinRating, u.MaxRating = r, r
	}
	if r < u.MinRating {
		u.MinRating = r
	}
	if r > u.MaxRating {
		u.MaxRating = r
	}
	u.TotalRating = (u.TotalRating*float64(u.TotalReviews) + float64(r)) / float64(u.TotalReviews+1)
	u.TotalReviews++
	u.LastRating = r
}

func (u *User) Reputation() *protocol.Reputation {
	return &protocol.Reputation{TotalReviews: u.TotalReviews, TotalRating: u.TotalRating}
}
