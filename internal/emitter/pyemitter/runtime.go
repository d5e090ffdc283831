package pyemitter

// runtimeTemplate is fen_runtime.py. Type modules register their codecs
// here, and named() resolves them lazily so that types may refer to each
// other regardless of import order.
const runtimeTemplate = `from __future__ import annotations

import json
import math
import re
import urllib.error
import urllib.request
from dataclasses import dataclass
from datetime import datetime, timedelta, timezone
from typing import Any, Callable, Dict, Generic, List, Optional, Sequence, Tuple, TypeVar, Union
from uuid import UUID

PAYLOAD_KEY = {{printf "%q" .PayloadKey}}
DEVELOPMENT_ENDPOINT = {{printf "%q" .Endpoint}}
PRODUCTION_ENDPOINT: Optional[str] = {{if .EndpointProd}}{{printf "%q" .EndpointProd}}{{else}}None{{end}}

T = TypeVar("T")


class ProtocolDecodeError(Exception):
    """Raised when bytes received do not match the expected type."""

    def __init__(self, path: str, reason: str) -> None:
        super().__init__(f"decode {path}: {reason}")
        self.path = path
        self.reason = reason


@dataclass(frozen=True)
class Success(Generic[T]):
    value: T


@dataclass(frozen=True)
class Failure:
    message: str
    status: int


Response = Union[Success[T], Failure]


class Codec(Generic[T]):
    def __init__(self, name: str, encode: Callable[[T], Any], decode: Callable[[Any, str], T]) -> None:
        self.name = name
        self.encode = encode
        self.decode = decode


def _kind(raw: Any) -> str:
    if raw is None:
        return "null"
    if isinstance(raw, bool):
        return "boolean"
    if isinstance(raw, (int, float)):
        return "number"
    if isinstance(raw, str):
        return "string"
    if isinstance(raw, list):
        return "array"
    return "object"


def _fail(path: str, reason: str) -> ProtocolDecodeError:
    return ProtocolDecodeError(path, reason)


def _encode_int(v: int) -> int:
    if isinstance(v, bool) or not isinstance(v, int):
        raise TypeError(f"{v!r} is not an Int")
    return v


def _decode_int(raw: Any, path: str) -> int:
    if isinstance(raw, bool) or not isinstance(raw, (int, float)):
        raise _fail(path, f"expected Int, got {_kind(raw)}")
    if isinstance(raw, float):
        if not raw.is_integer():
            raise _fail(path, f"expected Int, got non-integral number {raw!r}")
        return int(raw)
    return raw


def _encode_bool(v: bool) -> bool:
    if not isinstance(v, bool):
        raise TypeError(f"{v!r} is not a Bool")
    return v


def _encode_str(v: str) -> str:
    if not isinstance(v, str):
        raise TypeError(f"{v!r} is not a String")
    return v


def _encode_uuid(v: UUID) -> str:
    if not isinstance(v, UUID):
        raise TypeError(f"{v!r} is not a Uuid")
    return str(v)


def _encode_float(v: float) -> float:
    if isinstance(v, bool) or not isinstance(v, (int, float)) or not math.isfinite(v):
        raise TypeError(f"{v!r} has no JSON representation")
    return float(v)


def _decode_float(raw: Any, path: str) -> float:
    if isinstance(raw, bool) or not isinstance(raw, (int, float)):
        raise _fail(path, f"expected Float, got {_kind(raw)}")
    return float(raw)


def _decode_bool(raw: Any, path: str) -> bool:
    if not isinstance(raw, bool):
        raise _fail(path, f"expected Bool, got {_kind(raw)}")
    return raw


def _decode_str(raw: Any, path: str) -> str:
    if not isinstance(raw, str):
        raise _fail(path, f"expected String, got {_kind(raw)}")
    return raw


def _decode_uuid(raw: Any, path: str) -> UUID:
    s = _decode_str(raw, path)
    if len(s) != 36:
        raise _fail(path, f"{s!r} is not a hyphenated UUID")
    try:
        return UUID(s)
    except ValueError:
        raise _fail(path, f"{s!r} is not a UUID") from None


_RFC3339 = re.compile(
    r"^(\d{4})-(\d{2})-(\d{2})[Tt](\d{2}):(\d{2}):(\d{2})(?:\.\d+)?(?:([Zz])|([+-])(\d{2}):(\d{2}))$"
)


def _encode_date(v: datetime) -> str:
    if v.tzinfo is None:
        v = v.replace(tzinfo=timezone.utc)
    return v.astimezone(timezone.utc).strftime("%Y-%m-%dT%H:%M:%SZ")


def _decode_date(raw: Any, path: str) -> datetime:
    s = _decode_str(raw, path)
    m = _RFC3339.match(s)
    if m is None:
        raise _fail(path, f"{s!r} is not an RFC 3339 timestamp")
    offset = timedelta(0)
    if m.group(8):
        offset = timedelta(hours=int(m.group(9)), minutes=int(m.group(10)))
        if m.group(8) == "-":
            offset = -offset
    try:
        parts = [int(m.group(i)) for i in range(1, 7)]
        local = datetime(*parts, tzinfo=timezone(offset))
    except ValueError:
        raise _fail(path, f"{s!r} is not an RFC 3339 timestamp") from None
    return local.astimezone(timezone.utc)


INT: Codec[int] = Codec("Int", _encode_int, _decode_int)
FLOAT: Codec[float] = Codec("Float", _encode_float, _decode_float)
BOOL: Codec[bool] = Codec("Bool", _encode_bool, _decode_bool)
STRING: Codec[str] = Codec("String", _encode_str, _decode_str)
UUID_: Codec[UUID] = Codec("Uuid", _encode_uuid, _decode_uuid)
DATE: Codec[datetime] = Codec("Date", _encode_date, _decode_date)


def optional(codec: Codec[T]) -> Codec[Optional[T]]:
    return Codec(
        codec.name + "?",
        lambda v: None if v is None else codec.encode(v),
        lambda raw, path: None if raw is None else codec.decode(raw, path),
    )


def array(codec: Codec[T]) -> Codec[List[T]]:
    def decode(raw: Any, path: str) -> List[T]:
        if not isinstance(raw, list):
            raise _fail(path, f"expected array, got {_kind(raw)}")
        return [codec.decode(v, f"{path}[{i}]") for i, v in enumerate(raw)]

    return Codec("[" + codec.name + "]", lambda v: [codec.encode(e) for e in v], decode)


_REGISTRY: Dict[str, Codec[Any]] = {}


def register(name: str, codec: Codec[Any]) -> None:
    _REGISTRY[name] = codec


def named(name: str) -> Codec[Any]:
    """Returns a codec that looks up the registered codec of name on use."""
    return Codec(name, lambda v: _REGISTRY[name].encode(v), lambda raw, path: _REGISTRY[name].decode(raw, path))


# A struct field: attribute name, wire key, codec, optional.
Field = Tuple[str, str, Codec[Any], bool]


def struct(name: str, cls: Any, fields: Sequence[Field]) -> Codec[Any]:
    """Absent optional fields are sent as null; a missing optional key
    decodes as None."""

    def encode(v: Any) -> Dict[str, Any]:
        return {key: codec.encode(getattr(v, attr)) for attr, key, codec, _ in fields}

    def decode(raw: Any, path: str) -> Any:
        if not isinstance(raw, dict):
            raise _fail(path, f"expected {name} object, got {_kind(raw)}")
        values: Dict[str, Any] = {}
        for attr, key, codec, is_optional in fields:
            if key not in raw:
                if not is_optional:
                    raise _fail(f"{path}.{key}", "missing required field")
                values[attr] = None
                continue
            values[attr] = codec.decode(raw[key], f"{path}.{key}")
        return cls(**values)

    return Codec(name, encode, decode)


# A variant: wire tag, class, payload codec (None without payload), optional.
Variant = Tuple[str, Any, Optional[Codec[Any]], bool]


def _discriminant(raw: Any, path: str, name: str) -> str:
    if not isinstance(raw, dict):
        raise _fail(path, f"expected {name} object, got {_kind(raw)}")
    if "type" not in raw:
        raise _fail(f"{path}.type", "missing discriminant")
    tag = raw["type"]
    if not isinstance(tag, str):
        raise _fail(f"{path}.type", "discriminant must be a string")
    return tag


def tagged(name: str, variants: Sequence[Variant]) -> Codec[Any]:
    """Interprets an enum's variant table."""
    by_tag = {tag: (cls, codec, is_optional) for tag, cls, codec, is_optional in variants}
    by_cls = {cls: (tag, codec) for tag, cls, codec, _ in variants}

    def encode(v: Any) -> Dict[str, Any]:
        if type(v) not in by_cls:
            raise TypeError(f"{v!r} is not a {name}")
        tag, codec = by_cls[type(v)]
        if codec is None:
            return {"type": tag}
        return {"type": tag, PAYLOAD_KEY: codec.encode(v.value)}

    def decode(raw: Any, path: str) -> Any:
        tag = _discriminant(raw, path, name)
        if tag not in by_tag:
            raise _fail(f"{path}.type", f"unknown {name} variant {tag!r}")
        cls, codec, is_optional = by_tag[tag]
        if codec is None:
            return cls()
        if PAYLOAD_KEY not in raw:
            if not is_optional:
                raise _fail(f"{path}.{PAYLOAD_KEY}", f"missing payload of variant {tag!r}")
            return cls(None)
        return cls(codec.decode(raw[PAYLOAD_KEY], f"{path}.{PAYLOAD_KEY}"))

    return Codec(name, encode, decode)


def decode_response(codec: Codec[T], raw: Any, path: str = "$") -> Response[T]:
    """Decodes an envelope in two passes: the discriminant, then the variant."""
    tag = _discriminant(raw, path, "response")
    if tag == "success":
        if PAYLOAD_KEY not in raw:
            raise _fail(f"{path}.{PAYLOAD_KEY}", "missing required field")
        return Success(codec.decode(raw[PAYLOAD_KEY], f"{path}.{PAYLOAD_KEY}"))
    if tag == "failure":
        for key in ("message", "status"):
            if key not in raw:
                raise _fail(f"{path}.{key}", "missing required field")
        message = _decode_str(raw["message"], f"{path}.message")
        status = _decode_int(raw["status"], f"{path}.status")
        return Failure(message, status)
    raise _fail(f"{path}.type", f"unknown response type {tag!r}")


Transport = Callable[[urllib.request.Request, float], Tuple[int, bytes]]


def _urllib_transport(request: urllib.request.Request, timeout: float) -> Tuple[int, bytes]:
    try:
        with urllib.request.urlopen(request, timeout=timeout) as resp:
            return resp.status, resp.read()
    except urllib.error.HTTPError as err:
        return err.code, err.read()


def _reject_constant(name: str) -> Any:
    raise ValueError(f"{name} is not JSON")


NO_BODY: Any = object()


class ApiClient:
    """Calls the API. Holds only configuration and is safe to share."""

    def __init__(
        self,
        endpoint: str = DEVELOPMENT_ENDPOINT,
        timeout: float = 30.0,
        headers: Optional[Dict[str, str]] = None,
        transport: Optional[Transport] = None,
    ) -> None:
        self.endpoint = endpoint.rstrip("/")
        self.timeout = timeout
        self.headers = dict(headers or {})
        self.transport = transport or _urllib_transport

    def call(
        self,
        method: str,
        path: str,
        body: Any,
        output: Codec[T],
        session_token: Optional[str] = None,
    ) -> Response[T]:
        headers = {"Accept": "application/json", **self.headers}
        data = None
        if body is not NO_BODY:
            data = json.dumps(body, separators=(",", ":"), ensure_ascii=False, allow_nan=False).encode("utf-8")
            headers["Content-Type"] = "application/json"
        if session_token:
            headers["Authorization"] = f"Bearer {session_token}"
        request = urllib.request.Request(self.endpoint + path, data=data, method=method, headers=headers)
        status, payload = self.transport(request, self.timeout)
        try:
            raw = json.loads(payload, parse_constant=_reject_constant)
        except ValueError:
            raise ProtocolDecodeError("$", f"response (HTTP {status}) is not JSON") from None
        return decode_response(output, raw)
`
