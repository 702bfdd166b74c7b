package model

import "time"

// ConfigRequest is the prompt shown to the user while a device waits for a
// manual action such as pressing the bridge link button.
type ConfigRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	EntityPicture    string `json:"entity_picture,omitempty"`
	DescriptionImage string `json:"description_image,omitempty"`
	SubmitCaption    string `json:"submit_caption,omitempty"`
}

// PendingRequest is a ConfigRequest the user has not completed yet.
type PendingRequest struct {
	ID        string        `json:"id"`
	Request   ConfigRequest `json:"request"`
	Errors    string        `json:"errors,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
}

// SceneCall is the payload of the activate_scene service.
type SceneCall struct {
	GroupName string `json:"group_name" validate:"required"`
	SceneName string `json:"scene_name" validate:"required"`
}

type ServiceDescription struct {
	Description string                      `yaml:"description" json:"description"`
	Fields      map[string]FieldDescription `yaml:"fields" json:"fields,omitempty"`
}

type FieldDescription struct {
	Description string `yaml:"description" json:"description"`
	Example     string `yaml:"example" json:"example,omitempty"`
}
