package automation

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestParseModuleKind(t *testing.T) {
	for _, k := range AllModuleKinds() {
		got, err := ParseModuleKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseModuleKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseModuleKind("sensor"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("ParseModuleKind(sensor) error = %v, want ErrInvalidType", err)
	}
}

func TestTypeSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		kind    ModuleKind
		schema  TypeSchema
		wantErr bool
	}{
		{
			name: "valid action with outputs",
			kind: ActionModule,
			schema: TypeSchema{
				Parameters: []ParameterDescriptor{{Name: "itemName", Type: ParamText, Required: true}},
				Outputs:    []OutputDescriptor{{Name: "commandId", Type: ParamText}},
			},
		},
		{
			name:   "empty schema",
			kind:   TriggerModule,
			schema: TypeSchema{},
		},
		{
			name:    "outputs on condition",
			kind:    ConditionModule,
			schema:  TypeSchema{Outputs: []OutputDescriptor{{Name: "x"}}},
			wantErr: true,
		},
		{
			name:    "unnamed parameter",
			kind:    ActionModule,
			schema:  TypeSchema{Parameters: []ParameterDescriptor{{Type: ParamText}}},
			wantErr: true,
		},
		{
			name: "duplicate parameter",
			kind: ActionModule,
			schema: TypeSchema{Parameters: []ParameterDescriptor{
				{Name: "a", Type: ParamText},
				{Name: "a", Type: ParamNumber},
			}},
			wantErr: true,
		},
		{
			name:    "unknown parameter type",
			kind:    ActionModule,
			schema:  TypeSchema{Parameters: []ParameterDescriptor{{Name: "a", Type: "LIST"}}},
			wantErr: true,
		},
		{
			name:    "default of wrong kind",
			kind:    ActionModule,
			schema:  TypeSchema{Parameters: []ParameterDescriptor{{Name: "a", Type: ParamBoolean, Default: "yes"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.validate(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidType) {
				t.Errorf("error %v does not wrap ErrInvalidType", err)
			}
		})
	}
}

func TestModuleType_Normalize(t *testing.T) {
	typ := ModuleType{
		Kind:   ActionModule,
		TypeID: "core.ItemCommandAction",
		TypeSchema: TypeSchema{Parameters: []ParameterDescriptor{
			{Name: "itemName", Type: ParamText, Required: true},
			{Name: "command", Type: ParamText, Required: true},
			{Name: "protocol", Type: ParamText, Default: "knx"},
		}},
	}

	t.Run("fills defaults and keeps extra keys", func(t *testing.T) {
		cfg := NewConfiguration()
		cfg.Put("itemName", StringValue("light-hall"))
		cfg.Put("command", StringValue("on"))
		cfg.Put("note", StringValue("kept"))

		out, err := typ.Normalize(cfg)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if p, _ := out.GetString("protocol", ""); p != "knx" {
			t.Errorf("protocol = %q, want knx", p)
		}
		if !out.Has("note") {
			t.Error("undeclared key dropped")
		}
		if cfg.Has("protocol") {
			t.Error("Normalize mutated its input")
		}
	})

	t.Run("reports every problem", func(t *testing.T) {
		cfg := NewConfiguration()
		cfg.Put("itemName", BoolValue(true))

		_, err := typ.Normalize(cfg)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("Normalize error = %v, want ErrInvalidConfiguration", err)
		}
		var derr *DecodeError
		if !errors.As(err, &derr) || derr.Key != "itemName" {
			t.Errorf("error %v should carry a DecodeError for itemName", err)
		}
	})

	t.Run("nil configuration", func(t *testing.T) {
		_, err := typ.Normalize(nil)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("Normalize(nil) error = %v, want ErrInvalidConfiguration", err)
		}
	})
}

func TestActionFunc_Outputs(t *testing.T) {
	tests := []struct {
		name string
		ret  any
		want Outputs
	}{
		{"nil", nil, Outputs{}},
		{"map", map[string]any{"a": 1}, Outputs{"a": 1}},
		{"scalar", 7, Outputs{"result": 7}},
		{"inputs", Inputs{"x": "y"}, Outputs{"x": "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ActionFunc(func(_ context.Context, _ Inputs) (any, error) { return tt.ret, nil })
			got, err := f.Execute(context.Background(), nil)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Execute() = %v, want %v", got, tt.want)
			}
		})
	}
}
