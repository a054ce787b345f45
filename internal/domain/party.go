package domain

import "strings"

// PartyKind 往来方类型
type PartyKind string

const (
	PartyNone     PartyKind = "none"     // 未填写
	PartyContact  PartyKind = "contact"  // 通讯录中的联系人
	PartyExternal PartyKind = "external" // 外部自由文本
)

// MaxExternalPartyLength 外部往来方名称最大长度
const MaxExternalPartyLength = 200

// Party 发文人或收文人。
// Kind 决定 ContactID 与 External 中哪一个有效，另一个必须为空。
type Party struct {
	Kind      PartyKind `json:"kind" gorm:"type:varchar(10);default:'none'"`
	ContactID *uint     `json:"contactId,omitempty" gorm:"index"`
	External  string    `json:"external,omitempty" gorm:"type:varchar(200)"`
}

// NewParty 根据表单输入构造往来方，联系人与外部名称同时给出时返回错误
func NewParty(contactID *uint, external string) (Party, error) {
	external = strings.TrimSpace(external)
	switch {
	case contactID != nil && *contactID != 0 && external != "":
		return Party{}, ErrPartyConflict
	case contactID != nil && *contactID != 0:
		id := *contactID
		return ContactParty(id), nil
	case external != "":
		p := ExternalParty(external)
		return p, p.Validate()
	default:
		return Party{Kind: PartyNone}, nil
	}
}

// ContactParty 指向通讯录联系人的往来方
func ContactParty(id uint) Party {
	return Party{Kind: PartyContact, ContactID: &id}
}

// ExternalParty 外部往来方
func ExternalParty(name string) Party {
	return Party{Kind: PartyExternal, External: strings.TrimSpace(name)}
}

// Validate 检查标签与字段是否一致
func (p Party) Validate() error {
	switch p.Kind {
	case "", PartyNone:
		if p.ContactID != nil || p.External != "" {
			return ErrPartyConflict
		}
	case PartyContact:
		if p.ContactID == nil || *p.ContactID == 0 {
			return ErrPartyContactMissing
		}
		if p.External != "" {
			return ErrPartyConflict
		}
	case PartyExternal:
		if p.ContactID != nil {
			return ErrPartyConflict
		}
		if p.External == "" {
			return ErrPartyExternalMissing
		}
		if len([]rune(p.External)) > MaxExternalPartyLength {
			return ErrPartyExternalTooLong
		}
	default:
		return ErrInvalidPartyKind
	}
	return nil
}

// IsEmpty 未填写往来方
func (p Party) IsEmpty() bool {
	return p.Kind == "" || p.Kind == PartyNone
}

// Display 外部往来方返回名称，联系人返回 fallback
func (p Party) Display(fallback string) string {
	if p.Kind == PartyExternal {
		return p.External
	}
	if p.Kind == PartyContact {
		return fallback
	}
	return ""
}
