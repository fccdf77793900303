package models

import (
	"time"
)

type Profile struct {
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	TenantID      string    `json:"tenantId" gorm:"type:text;not null;index:idx_profile_tenant"`
	FullName      string    `json:"fullName" gorm:"type:text;not null;default:''"`
	Phone         string    `json:"phone" gorm:"type:text;not null;default:''"`
	PhoneVerified bool      `json:"phoneVerified" gorm:"type:boolean;not null;default:false"`
	Birthdate     string    `json:"birthdate" gorm:"type:text;not null;default:''"`
	Email         string    `json:"email" gorm:"type:text;index:idx_profile_email"`
	IsApproved    bool      `json:"isApproved" gorm:"type:boolean;not null;default:false;index:idx_profile_tenant"`
	CDate         time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate         time.Time `json:"mdate" gorm:"autoUpdateTime;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Grant struct {
	Email    string    `json:"email" gorm:"primaryKey;type:text"`
	Role     string    `json:"role" gorm:"type:text;not null;index:idx_grant_role"`
	TenantID string    `json:"tenantId" gorm:"type:text;not null;index:idx_grant_role"`
	CDate    time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Notice struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	TenantID    string    `json:"tenantId" gorm:"type:text;not null"`
	RecipientID string    `json:"recipientId" gorm:"type:text;not null;index:idx_notice_recipient"`
	ActorLabel  string    `json:"actorLabel" gorm:"type:text;not null;default:''"`
	Kind        string    `json:"kind" gorm:"type:text;not null"`
	RelatedID   *string   `json:"relatedId" gorm:"type:text"`
	IsRead      bool      `json:"isRead" gorm:"type:boolean;not null;default:false"`
	CDate       time.Time `json:"cdate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp();index:idx_notice_recipient,sort:desc"`
}

type PushSubscription struct {
	OwnerID    string    `json:"ownerId" gorm:"primaryKey;type:text"`
	Descriptor string    `json:"descriptor" gorm:"type:text;not null"`
	MDate      time.Time `json:"mdate" gorm:"autoUpdateTime;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
