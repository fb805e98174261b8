package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nhle/universal-inbox/internal/model"
)

const commonDefs = `{
	"taskDefaults": {
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"project": {"type": "string"},
			"due_in_days": {"type": "integer", "minimum": 0},
			"priority": {"type": "integer", "minimum": 1, "maximum": 4}
		}
	},
	"slackSync": {
		"type": "object",
		"required": ["enabled", "sync_type"],
		"properties": {
			"enabled": {"type": "boolean"},
			"sync_type": {"enum": ["as_notifications", "as_tasks"]},
			"task_defaults": {"$ref": "#/$defs/taskDefaults"}
		}
	},
	"label": {
		"type": "object",
		"required": ["id", "name"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string"}
		}
	}
}`

func flags(names ...string) string {
	props := make([]string, len(names))
	quoted := make([]string, len(names))
	for i, n := range names {
		props[i] = fmt.Sprintf("%q: {\"type\": \"boolean\"}", n)
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return `{"type": "object", "additionalProperties": false, "required": [` +
		strings.Join(quoted, ", ") + `], "properties": {` + strings.Join(props, ", ") + `}}`
}

var providerSchemas = map[model.IntegrationProviderKind]string{
	model.ProviderGithub:         flags("sync_notifications_enabled"),
	model.ProviderGoogleCalendar: flags("sync_event_details_enabled"),
	model.ProviderGoogleDrive:    flags("sync_notifications_enabled"),
	model.ProviderTodoist:        flags("sync_tasks_enabled", "create_notification_from_inbox_task"),
	model.ProviderTickTick:       flags("sync_tasks_enabled", "create_notification_from_inbox_task"),
	model.ProviderSlack: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["star_config", "reaction_config", "message_config"],
		"properties": {
			"star_config": {"$ref": "#/$defs/slackSync"},
			"reaction_config": {
				"allOf": [{"$ref": "#/$defs/slackSync"}],
				"required": ["reaction_name"],
				"properties": {"reaction_name": {"type": "string", "minLength": 1}}
			},
			"message_config": {
				"type": "object",
				"required": ["enabled"],
				"properties": {
					"enabled": {"type": "boolean"},
					"is_two_way_sync": {"type": "boolean"}
				}
			}
		}
	}`,
	model.ProviderGoogleMail: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["sync_notifications_enabled", "synced_label"],
		"properties": {
			"sync_notifications_enabled": {"type": "boolean"},
			"synced_label": {"$ref": "#/$defs/label"}
		}
	}`,
	model.ProviderLinear: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["sync_notifications_enabled", "sync_tasks_enabled"],
		"properties": {
			"sync_notifications_enabled": {"type": "boolean"},
			"sync_tasks_enabled": {"type": "boolean"},
			"task_defaults": {"$ref": "#/$defs/taskDefaults"}
		}
	}`,
}

// configValidator checks connection configs against a JSON schema per
// provider.
type configValidator struct {
	schemas map[model.IntegrationProviderKind]*jsonschema.Schema
}

func newConfigValidator() (*configValidator, error) {
	c := jsonschema.NewCompiler()
	v := &configValidator{schemas: make(map[model.IntegrationProviderKind]*jsonschema.Schema)}

	for kind, body := range providerSchemas {
		raw := `{
			"$defs": ` + commonDefs + `,
			"type": "object",
			"additionalProperties": false,
			"required": ["` + string(kind) + `"],
			"properties": {"` + string(kind) + `": ` + body + `}
		}`
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing %s config schema: %w", kind, err)
		}
		url := "config/" + string(kind) + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("adding %s config schema: %w", kind, err)
		}
		schema, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compiling %s config schema: %w", kind, err)
		}
		v.schemas[kind] = schema
	}
	return v, nil
}

// Validate checks that config holds a valid configuration of kind.
func (v *configValidator) Validate(kind model.IntegrationProviderKind, config model.IntegrationConnectionConfig) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("no config schema for %s", kind)
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling %s config: %w", kind, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decoding %s config: %w", kind, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("invalid %s config: %w", kind, err)
	}
	return nil
}
