package router

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
)

// BuildOpenAPI generates an OpenAPI 3.0 document from the route table. Body
// schemas come from openapi3gen; `binding:"required"` fields are listed as
// required and pointer fields are nullable.
func BuildOpenAPI(title, version string, routes []Route) (*openapi3.T, error) {
	if version == "" {
		version = "1.0"
	}

	b := &docBuilder{
		doc: &openapi3.T{
			OpenAPI: "3.0.3",
			Info:    &openapi3.Info{Title: title, Version: version},
			Paths:   openapi3.NewPaths(),
			Components: &openapi3.Components{
				Schemas: make(openapi3.Schemas),
			},
		},
		refs: make(map[reflect.Type]*openapi3.SchemaRef),
	}

	for _, route := range routes {
		op, err := b.operation(route)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", route.Method, route.Path, err)
		}

		p := openAPIPath(route.Path)
		item := b.doc.Paths.Value(p)
		if item == nil {
			item = &openapi3.PathItem{}
			b.doc.Paths.Set(p, item)
		}
		item.SetOperation(route.Method, op)
	}

	return b.doc, nil
}

// openAPIPath converts gin path parameters (:id) to OpenAPI notation ({id})
func openAPIPath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") {
			segments[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}

func pathParams(p string) []string {
	var params []string
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") {
			params = append(params, seg[1:])
		}
	}
	return params
}

type docBuilder struct {
	doc  *openapi3.T
	refs map[reflect.Type]*openapi3.SchemaRef
}

func (b *docBuilder) operation(route Route) (*openapi3.Operation, error) {
	op := openapi3.NewOperation()
	op.Summary = route.Summary
	if route.Tag != "" {
		op.Tags = []string{route.Tag}
	}

	for _, name := range pathParams(route.Path) {
		op.AddParameter(openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()))
	}

	if route.Request != nil {
		ref, err := b.schemaRef(route.Request)
		if err != nil {
			return nil, err
		}
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref),
		}
	}

	op.Responses = openapi3.NewResponsesWithCapacity(len(route.Errors) + 1)
	if err := b.addResponse(op.Responses, route.Status, route.Response); err != nil {
		return nil, err
	}
	for code, body := range route.Errors {
		if err := b.addResponse(op.Responses, code, body); err != nil {
			return nil, err
		}
	}

	return op, nil
}

func (b *docBuilder) addResponse(responses *openapi3.Responses, code int, body any) error {
	resp := openapi3.NewResponse().WithDescription(http.StatusText(code))
	if body != nil {
		ref, err := b.schemaRef(body)
		if err != nil {
			return err
		}
		resp.WithJSONSchemaRef(ref)
	}
	responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{Value: resp})
	return nil
}

// schemaRef registers named struct types under components/schemas once and
// returns a reference to them
func (b *docBuilder) schemaRef(value any) (*openapi3.SchemaRef, error) {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if ref, ok := b.refs[t]; ok {
		return ref, nil
	}

	generated, err := openapi3gen.NewSchemaRefForValue(value, make(openapi3.Schemas))
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", t, err)
	}
	if t.Kind() != reflect.Struct || t.Name() == "" {
		return generated, nil
	}

	applyBindingRules(t, generated.Value)
	b.doc.Components.Schemas[t.Name()] = generated

	ref := &openapi3.SchemaRef{Ref: "#/components/schemas/" + t.Name(), Value: generated.Value}
	b.refs[t] = ref
	return ref, nil
}

// applyBindingRules marks the struct's `binding:"required"` fields as
// required and its pointer fields as nullable
func applyBindingRules(t reflect.Type, schema *openapi3.Schema) {
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}

		prop, ok := schema.Properties[name]
		if ok && prop.Value != nil && field.Type.Kind() == reflect.Pointer {
			prop.Value.Nullable = true
		}

		for _, rule := range strings.Split(field.Tag.Get("binding"), ",") {
			if rule == "required" {
				required = append(required, name)
			}
		}
	}

	schema.Required = required
}
