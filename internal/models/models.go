package models

// Rotation validation policies
const (
	RotationPermissive = "permissive"
	RotationStrict     = "strict"
)

// Push message types
const (
	MessageTypeState = "state"
	MessageTypeImage = "image"
)

// StateDocument is the single shared display configuration record.
type StateDocument struct {
	Mode       int `json:"mode"`
	Brightness int `json:"brightness"`
	Rotation   int `json:"rotation"`
}

// DefaultState returns the document used when no persisted copy exists.
func DefaultState() StateDocument {
	return StateDocument{Mode: 0, Brightness: 60, Rotation: 0}
}

// UpdateRequest is a partial state update. Pointer fields distinguish
// an absent field from an explicit zero.
type UpdateRequest struct {
	Mode       *int `json:"mode,omitempty"`
	Brightness *int `json:"brightness,omitempty"`
	Rotation   *int `json:"rotation,omitempty"`
}

// Empty reports whether no field is present.
func (u UpdateRequest) Empty() bool {
	return u.Mode == nil && u.Brightness == nil && u.Rotation == nil
}

// StateMessage is the push-channel message carrying the full document.
// It is sent once as a synchronization snapshot on connect and re-sent
// to every client on each accepted mutation.
type StateMessage struct {
	Type       string `json:"type"`
	Mode       int    `json:"mode"`
	Brightness int    `json:"brightness"`
	Rotation   int    `json:"rotation"`
}

// NewStateMessage wraps a document in the wire shape.
func NewStateMessage(doc StateDocument) StateMessage {
	return StateMessage{
		Type:       MessageTypeState,
		Mode:       doc.Mode,
		Brightness: doc.Brightness,
		Rotation:   doc.Rotation,
	}
}

// ImageMessage notifies clients that a new image revision is available.
// It carries only the revision tag; clients pull the blob via GET /image.
type ImageMessage struct {
	Type string `json:"type"`
	Rev  int64  `json:"rev"`
}

type Resp struct {
	OK   bool        `json:"ok"`
	Info interface{} `json:"info"`
}

// ImageUploadResp is returned after a successful image upload.
type ImageUploadResp struct {
	OK  bool  `json:"ok"`
	Rev int64 `json:"rev"`
}

// TokenResp carries a freshly minted access token.
type TokenResp struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}
