package goemitter

// runtimeTemplate is fen_runtime.go: transport, envelope, codec
// combinators and the tagged-union routine shared by every generated type.
const runtimeTemplate = `package {{.Package}}

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DevelopmentEndpoint is the base URL DefaultConfig points at.
	DevelopmentEndpoint = {{printf "%q" .Endpoint}}
{{- if .EndpointProd}}
	// ProductionEndpoint is the production base URL.
	ProductionEndpoint = {{printf "%q" .EndpointProd}}
{{- end}}
)

const fenPayloadKey = {{printf "%q" .PayloadKey}}

// Config is the connection configuration of a Client.
type Config struct {
	// Endpoint is the base URL endpoint paths are appended to.
	Endpoint string
	// HTTPClient performs requests. http.DefaultClient is used when nil.
	HTTPClient *http.Client
	// Header is added to every request.
	Header http.Header
}

// DefaultConfig returns a Config for DevelopmentEndpoint.
func DefaultConfig() Config {
	return Config{Endpoint: DevelopmentEndpoint}
}

// Client calls the API. It holds no state besides its Config and is safe
// for concurrent use.
type Client struct {
	cfg Config
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{cfg: cfg}
}

// Response is the outcome of an endpoint call: Value on success, or the
// Failure reported by the server.
type Response[T any] struct {
	Value   T
	Failure *ApplicationError
}

// OK reports whether the call succeeded.
func (r Response[T]) OK() bool { return r.Failure == nil }

// Result returns the value, or the failure as an error.
func (r Response[T]) Result() (T, error) {
	if r.Failure != nil {
		var zero T
		return zero, r.Failure
	}
	return r.Value, nil
}

// ApplicationError is a failure envelope sent by the server.
type ApplicationError struct {
	Message string
	Status  int64
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("application error (status %d): %s", e.Status, e.Message)
}

// ProtocolDecodeError reports bytes that do not match the expected type.
type ProtocolDecodeError struct {
	Path   string
	Reason string
}

func (e *ProtocolDecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
}

func fenDecodeError(path, format string, args ...any) error {
	return &ProtocolDecodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Date is a UTC timestamp with whole-second precision.
type Date struct {
	time.Time
}

// NewDate normalizes t to UTC and truncates it to whole seconds.
func NewDate(t time.Time) Date {
	return Date{Time: t.UTC().Truncate(time.Second)}
}

func (d Date) MarshalJSON() ([]byte, error) { return fenEncodeDate(d) }

func (d *Date) UnmarshalJSON(data []byte) error {
	v, err := fenDecodeDate("$", data)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Ptr returns a pointer to v, for optional values.
func Ptr[T any](v T) *T { return &v }

func fenCall[T any](ctx context.Context, c *Client, method, path string, body json.RawMessage, token string, dec func(string, json.RawMessage) (T, error)) (Response[T], error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reader)
	if err != nil {
		return Response[T]{}, err
	}
	for k, vs := range c.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return Response[T]{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response[T]{}, err
	}
	if !json.Valid(data) {
		return Response[T]{}, fenDecodeError("$", "response (HTTP %d) is not JSON", resp.StatusCode)
	}
	return fenDecodeResponse(dec)("$", data)
}

// Encoding.

type fenObject struct {
	buf bytes.Buffer
	n   int
	err error
}

func fenNewObject() *fenObject {
	o := &fenObject{}
	o.buf.WriteByte('{')
	return o
}

func (o *fenObject) field(key string, b json.RawMessage, err error) {
	if o.err != nil {
		return
	}
	if err != nil {
		o.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	if o.n > 0 {
		o.buf.WriteByte(',')
	}
	o.n++
	k, _ := fenEncodeString(key)
	o.buf.Write(k)
	o.buf.WriteByte(':')
	o.buf.Write(b)
}

func (o *fenObject) finish() (json.RawMessage, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.buf.WriteByte('}')
	return o.buf.Bytes(), nil
}

func fenWriteField[T any](o *fenObject, key string, v T, enc func(T) (json.RawMessage, error)) {
	if o.err != nil {
		return
	}
	b, err := enc(v)
	o.field(key, b, err)
}

func fenEncodeInt(v int64) (json.RawMessage, error) {
	return strconv.AppendInt(nil, v, 10), nil
}

func fenEncodeFloat(v float64) (json.RawMessage, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%v has no JSON representation", v)
	}
	return json.Marshal(v)
}

func fenEncodeBool(v bool) (json.RawMessage, error) {
	return strconv.AppendBool(nil, v), nil
}

func fenEncodeString(v string) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func fenEncodeUUID(v uuid.UUID) (json.RawMessage, error) {
	return json.RawMessage("\"" + v.String() + "\""), nil
}

func fenEncodeDate(v Date) (json.RawMessage, error) {
	return json.RawMessage("\"" + v.UTC().Format("2006-01-02T15:04:05Z") + "\""), nil
}

func fenEncodeOptional[T any](enc func(T) (json.RawMessage, error)) func(*T) (json.RawMessage, error) {
	return func(v *T) (json.RawMessage, error) {
		if v == nil {
			return json.RawMessage("null"), nil
		}
		return enc(*v)
	}
}

// fenEncodeNilable encodes an optional enum; the nil interface is null.
func fenEncodeNilable[T any](enc func(T) (json.RawMessage, error)) func(T) (json.RawMessage, error) {
	return func(v T) (json.RawMessage, error) {
		if any(v) == nil {
			return json.RawMessage("null"), nil
		}
		return enc(v)
	}
}

func fenEncodeArray[T any](enc func(T) (json.RawMessage, error)) func([]T) (json.RawMessage, error) {
	return func(vs []T) (json.RawMessage, error) {
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, v := range vs {
			b, err := enc(v)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
}

func fenEncodeResponse[T any](enc func(T) (json.RawMessage, error)) func(Response[T]) (json.RawMessage, error) {
	return func(r Response[T]) (json.RawMessage, error) {
		o := fenNewObject()
		if r.Failure != nil {
			fenWriteField(o, "type", "failure", fenEncodeString)
			fenWriteField(o, "message", r.Failure.Message, fenEncodeString)
			fenWriteField(o, "status", r.Failure.Status, fenEncodeInt)
			return o.finish()
		}
		fenWriteField(o, "type", "success", fenEncodeString)
		fenWriteField(o, fenPayloadKey, r.Value, enc)
		return o.finish()
	}
}

// fenTagged is implemented by every enum variant type.
type fenTagged interface {
	fenTag() (string, func() (json.RawMessage, error))
}

func fenEncodeTagged(name string, v fenTagged) (json.RawMessage, error) {
	if v == nil {
		return nil, fmt.Errorf("nil %s", name)
	}
	tag, payload := v.fenTag()
	o := fenNewObject()
	fenWriteField(o, "type", tag, fenEncodeString)
	if payload != nil {
		b, err := payload()
		o.field(fenPayloadKey, b, err)
	}
	return o.finish()
}

// Decoding.

func fenKind(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "nothing"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func fenDecodeInt(path string, raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if fenKind(raw) != "number" {
		return 0, fenDecodeError(path, "expected Int, got %s", fenKind(raw))
	}
	s := string(raw)
	if !strings.ContainsAny(s, ".eE") {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fenDecodeError(path, "Int %s out of range", s)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fenDecodeError(path, "expected Int, got non-integral number %s", s)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fenDecodeError(path, "Int %s out of range", s)
	}
	return int64(f), nil
}

func fenDecodeFloat(path string, raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if fenKind(raw) != "number" {
		return 0, fenDecodeError(path, "expected Float, got %s", fenKind(raw))
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fenDecodeError(path, "Float %s out of range", raw)
	}
	return f, nil
}

func fenDecodeBool(path string, raw json.RawMessage) (bool, error) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fenDecodeError(path, "expected Bool, got %s", fenKind(bytes.TrimSpace(raw)))
}

func fenDecodeString(path string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if fenKind(raw) != "string" {
		return "", fenDecodeError(path, "expected String, got %s", fenKind(raw))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fenDecodeError(path, "%v", err)
	}
	return s, nil
}

func fenDecodeUUID(path string, raw json.RawMessage) (uuid.UUID, error) {
	s, err := fenDecodeString(path, raw)
	if err != nil {
		return uuid.UUID{}, err
	}
	if len(s) != 36 {
		return uuid.UUID{}, fenDecodeError(path, "%q is not a hyphenated UUID", s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fenDecodeError(path, "%q is not a UUID: %v", s, err)
	}
	return id, nil
}

func fenDecodeDate(path string, raw json.RawMessage) (Date, error) {
	s, err := fenDecodeString(path, raw)
	if err != nil {
		return Date{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fenDecodeError(path, "%q is not an RFC 3339 timestamp", s)
	}
	return NewDate(t), nil
}

func fenDecodeNilable[T any](dec func(string, json.RawMessage) (T, error)) func(string, json.RawMessage) (T, error) {
	return func(path string, raw json.RawMessage) (T, error) {
		var zero T
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || string(raw) == "null" {
			return zero, nil
		}
		return dec(path, raw)
	}
}

func fenDecodeOptional[T any](dec func(string, json.RawMessage) (T, error)) func(string, json.RawMessage) (*T, error) {
	return func(path string, raw json.RawMessage) (*T, error) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		v, err := dec(path, raw)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}

func fenDecodeArray[T any](dec func(string, json.RawMessage) (T, error)) func(string, json.RawMessage) ([]T, error) {
	return func(path string, raw json.RawMessage) ([]T, error) {
		raw = bytes.TrimSpace(raw)
		if fenKind(raw) != "array" {
			return nil, fenDecodeError(path, "expected array, got %s", fenKind(raw))
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fenDecodeError(path, "%v", err)
		}
		out := make([]T, 0, len(elems))
		for i, e := range elems {
			v, err := dec(fmt.Sprintf("%s[%d]", path, i), e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

type fenObjectReader struct {
	path   string
	fields map[string]json.RawMessage
	err    error
}

func fenReadObject(path, name string, raw json.RawMessage) (*fenObjectReader, error) {
	raw = bytes.TrimSpace(raw)
	if fenKind(raw) != "object" {
		return nil, fenDecodeError(path, "expected %s object, got %s", name, fenKind(raw))
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fenDecodeError(path, "%v", err)
	}
	return &fenObjectReader{path: path, fields: fields}, nil
}

func fenReadField[T any](r *fenObjectReader, key string, dec func(string, json.RawMessage) (T, error)) T {
	var zero T
	if r.err != nil {
		return zero
	}
	raw, ok := r.fields[key]
	if !ok {
		r.err = fenDecodeError(r.path+"."+key, "missing required field")
		return zero
	}
	v, err := dec(r.path+"."+key, raw)
	if err != nil {
		r.err = err
		return zero
	}
	return v
}

// fenReadOptionalField treats a missing key like null.
func fenReadOptionalField[T any](r *fenObjectReader, key string, dec func(string, json.RawMessage) (T, error)) T {
	var zero T
	if r.err != nil {
		return zero
	}
	raw, ok := r.fields[key]
	if !ok {
		return zero
	}
	v, err := dec(r.path+"."+key, raw)
	if err != nil {
		r.err = err
		return zero
	}
	return v
}

func fenReadDiscriminant(path, name string, raw json.RawMessage) (string, error) {
	r, err := fenReadObject(path, name, raw)
	if err != nil {
		return "", err
	}
	traw, ok := r.fields["type"]
	if !ok {
		return "", fenDecodeError(path+".type", "missing discriminant")
	}
	if fenKind(traw) != "string" {
		return "", fenDecodeError(path+".type", "discriminant must be a string")
	}
	var tag string
	if err := json.Unmarshal(traw, &tag); err != nil {
		return "", fenDecodeError(path+".type", "discriminant must be a string")
	}
	return tag, nil
}

// fenVariant is one entry of an enum's variant table.
type fenVariant[T any] struct {
	payload  bool
	optional bool
	decode   func(path string, raw json.RawMessage) (T, error)
}

type fenVariants[T any] struct {
	name     string
	variants map[string]fenVariant[T]
}

func fenDecodeTagged[T any](path string, raw json.RawMessage, table fenVariants[T]) (T, error) {
	var zero T
	raw = bytes.TrimSpace(raw)
	tag, err := fenReadDiscriminant(path, table.name, raw)
	if err != nil {
		return zero, err
	}
	entry, ok := table.variants[tag]
	if !ok {
		return zero, fenDecodeError(path+".type", "unknown %s variant %q", table.name, tag)
	}
	if !entry.payload {
		return entry.decode(path, nil)
	}
	r, err := fenReadObject(path, table.name, raw)
	if err != nil {
		return zero, err
	}
	praw, present := r.fields[fenPayloadKey]
	if !present {
		if !entry.optional {
			return zero, fenDecodeError(path+"."+fenPayloadKey, "missing payload of variant %q", tag)
		}
		praw = json.RawMessage("null")
	}
	return entry.decode(path+"."+fenPayloadKey, praw)
}

func fenDecodeResponse[T any](dec func(string, json.RawMessage) (T, error)) func(string, json.RawMessage) (Response[T], error) {
	return func(path string, raw json.RawMessage) (Response[T], error) {
		raw = bytes.TrimSpace(raw)
		tag, err := fenReadDiscriminant(path, "response", raw)
		if err != nil {
			return Response[T]{}, err
		}
		r, err := fenReadObject(path, "response", raw)
		if err != nil {
			return Response[T]{}, err
		}
		switch tag {
		case "success":
			v := fenReadField(r, fenPayloadKey, dec)
			if r.err != nil {
				return Response[T]{}, r.err
			}
			return Response[T]{Value: v}, nil
		case "failure":
			msg := fenReadField(r, "message", fenDecodeString)
			status := fenReadField(r, "status", fenDecodeInt)
			if r.err != nil {
				return Response[T]{}, r.err
			}
			return Response[T]{Failure: &ApplicationError{Message: msg, Status: status}}, nil
		default:
			return Response[T]{}, fenDecodeError(path+".type", "unknown response type %q", tag)
		}
	}
}
`
