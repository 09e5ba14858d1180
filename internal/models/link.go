package models

import "strings"

// Asset-asset relation types.
const (
	RelationContains     = "contains"      // parent asset → attachment / part
	RelationThreadMember = "thread_member" // thread ref → asset
	RelationReplyTo      = "reply_to"
	RelationForwardOf    = "forward_of"
)

// Person-asset roles.
const (
	RoleAuthor    = "author"
	RoleRecipient = "recipient"
	RoleMentioned = "mentioned"
	RoleSpeaker   = "speaker"
)

// ThreadRef returns the asset reference used for thread-membership edges.
func ThreadRef(threadID string) string {
	return "thread:" + threadID
}

// PersonAssetLink relates a person to an asset in a role.
type PersonAssetLink struct {
	PersonID   string  `json:"person_id"`
	AssetRef   string  `json:"asset_ref"`
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence"`
}

// Validate checks PersonAssetLink fields.
func (l *PersonAssetLink) Validate() error {
	l.Role = strings.TrimSpace(strings.ToLower(l.Role))

	switch {
	case l.PersonID == "":
		return ErrMissingField("person_id")
	case l.AssetRef == "":
		return ErrMissingField("asset_ref")
	case l.Role == "":
		return ErrMissingField("role")
	case len(l.AssetRef) > maxRefLength:
		return ErrFieldTooLong("asset_ref", maxRefLength)
	case len(l.Role) > 100:
		return ErrFieldTooLong("role", 100)
	}

	return validateConfidence(&l.Confidence)
}

// AssetEdge is a typed structural relation between two assets.
type AssetEdge struct {
	SrcRef       string  `json:"src_ref"`
	DstRef       string  `json:"dst_ref"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
}

// Validate checks AssetEdge fields.
func (e *AssetEdge) Validate() error {
	e.RelationType = strings.TrimSpace(strings.ToLower(e.RelationType))

	switch {
	case e.SrcRef == "":
		return ErrMissingField("src_ref")
	case e.DstRef == "":
		return ErrMissingField("dst_ref")
	case e.SrcRef == e.DstRef:
		return Malformed("src_ref and dst_ref must differ")
	case e.RelationType == "":
		return ErrMissingField("relation_type")
	case len(e.SrcRef) > maxRefLength:
		return ErrFieldTooLong("src_ref", maxRefLength)
	case len(e.DstRef) > maxRefLength:
		return ErrFieldTooLong("dst_ref", maxRefLength)
	}

	return validateConfidence(&e.Confidence)
}
