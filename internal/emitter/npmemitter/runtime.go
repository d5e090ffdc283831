package npmemitter

// runtimeTemplate is runtime.ts. Codecs convert between decoded JSON values
// and the generated types; JSON.parse and JSON.stringify do the rest.
const runtimeTemplate = `export const PAYLOAD_KEY = "{{js .PayloadKey}}";

export const endpoints = {
  development: "{{js .Endpoint}}",
{{- if .EndpointProd}}
  production: "{{js .EndpointProd}}",
{{- end}}
} as const;

export class ProtocolDecodeError extends Error {
  constructor(
    readonly path: string,
    readonly reason: string,
  ) {
    super(` + "`decode ${path}: ${reason}`" + `);
    this.name = "ProtocolDecodeError";
  }
}

export type Response<T> =
  | { type: "success"; value: T }
  | { type: "failure"; message: string; status: number };

export interface Codec<T> {
  encode(value: T): unknown;
  decode(raw: unknown, path: string): T;
}

function kind(raw: unknown): string {
  if (raw === null) return "null";
  if (raw === undefined) return "nothing";
  if (Array.isArray(raw)) return "array";
  return typeof raw;
}

function fail(path: string, reason: string): never {
  throw new ProtocolDecodeError(path, reason);
}

function isObject(raw: unknown): raw is Record<string, unknown> {
  return typeof raw === "object" && raw !== null && !Array.isArray(raw);
}

export const int: Codec<number> = {
  encode(value) {
    if (!Number.isSafeInteger(value)) throw new TypeError(` + "`${value} is not an Int`" + `);
    return value;
  },
  decode(raw, path) {
    if (typeof raw !== "number") fail(path, ` + "`expected Int, got ${kind(raw)}`" + `);
    if (!Number.isInteger(raw)) fail(path, ` + "`expected Int, got non-integral number ${raw}`" + `);
    return raw as number;
  },
};

export const float: Codec<number> = {
  encode(value) {
    if (!Number.isFinite(value)) throw new TypeError(` + "`${value} has no JSON representation`" + `);
    return value;
  },
  decode(raw, path) {
    if (typeof raw !== "number") fail(path, ` + "`expected Float, got ${kind(raw)}`" + `);
    return raw as number;
  },
};

export const bool: Codec<boolean> = {
  encode: (value) => value,
  decode(raw, path) {
    if (typeof raw !== "boolean") fail(path, ` + "`expected Bool, got ${kind(raw)}`" + `);
    return raw as boolean;
  },
};

export const string: Codec<string> = {
  encode: (value) => value,
  decode(raw, path) {
    if (typeof raw !== "string") fail(path, ` + "`expected String, got ${kind(raw)}`" + `);
    return raw as string;
  },
};

const UUID_PATTERN = /^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$/;

export const uuid: Codec<string> = {
  encode(value) {
    if (!UUID_PATTERN.test(value)) throw new TypeError(` + "`${value} is not a UUID`" + `);
    return value.toLowerCase();
  },
  decode(raw, path) {
    const s = string.decode(raw, path);
    if (!UUID_PATTERN.test(s)) fail(path, ` + "`${JSON.stringify(s)} is not a hyphenated UUID`" + `);
    return s.toLowerCase();
  },
};

const RFC3339 = /^\d{4}-\d{2}-\d{2}[Tt]\d{2}:\d{2}:\d{2}(\.\d+)?([Zz]|[+-]\d{2}:\d{2})$/;

export const date: Codec<Date> = {
  encode(value) {
    const ms = value.getTime();
    if (Number.isNaN(ms)) throw new TypeError("invalid Date");
    return new Date(Math.floor(ms / 1000) * 1000).toISOString().replace(".000Z", "Z");
  },
  decode(raw, path) {
    const s = string.decode(raw, path);
    const ms = RFC3339.test(s) ? Date.parse(s) : Number.NaN;
    if (Number.isNaN(ms)) fail(path, ` + "`${JSON.stringify(s)} is not an RFC 3339 timestamp`" + `);
    return new Date(Math.floor(ms / 1000) * 1000);
  },
};

export function optional<T>(codec: Codec<T>): Codec<T | null> {
  return {
    encode: (value) => (value === null || value === undefined ? null : codec.encode(value)),
    decode: (raw, path) => (raw === null || raw === undefined ? null : codec.decode(raw, path)),
  };
}

export function array<T>(codec: Codec<T>): Codec<T[]> {
  return {
    encode: (value) => value.map((v) => codec.encode(v)),
    decode(raw, path) {
      if (!Array.isArray(raw)) fail(path, ` + "`expected array, got ${kind(raw)}`" + `);
      return (raw as unknown[]).map((v, i) => codec.decode(v, ` + "`${path}[${i}]`" + `));
    },
  };
}

// lazy defers codec lookup so that types may refer to each other.
export function lazy<T>(get: () => Codec<T>): Codec<T> {
  return {
    encode: (value) => get().encode(value),
    decode: (raw, path) => get().decode(raw, path),
  };
}

export type Field = readonly [key: string, codec: Codec<any>, optional: boolean];

// struct writes every field in declaration order; an absent optional field
// is sent as null. On decode a missing optional field is null.
export function struct<T>(name: string, fields: readonly Field[]): Codec<T> {
  return {
    encode(value) {
      const out: Record<string, unknown> = {};
      const record = value as unknown as Record<string, unknown>;
      for (const [key, codec] of fields) {
        out[key] = codec.encode(record[key]);
      }
      return out;
    },
    decode(raw, path) {
      if (!isObject(raw)) fail(path, ` + "`expected ${name} object, got ${kind(raw)}`" + `);
      const obj = raw as Record<string, unknown>;
      const out: Record<string, unknown> = {};
      for (const [key, codec, isOptional] of fields) {
        if (!(key in obj)) {
          if (!isOptional) fail(` + "`${path}.${key}`" + `, "missing required field");
          out[key] = null;
          continue;
        }
        out[key] = codec.decode(obj[key], ` + "`${path}.${key}`" + `);
      }
      return out as T;
    },
  };
}

export interface VariantSpec {
  codec: Codec<any>;
  optional: boolean;
}

export type VariantTable = Readonly<Record<string, VariantSpec | null>>;

function discriminant(raw: unknown, path: string, name: string): string {
  if (!isObject(raw)) fail(path, ` + "`expected ${name} object, got ${kind(raw)}`" + `);
  const tag = (raw as Record<string, unknown>).type;
  if (tag === undefined) fail(` + "`${path}.type`" + `, "missing discriminant");
  if (typeof tag !== "string") fail(` + "`${path}.type`" + `, "discriminant must be a string");
  return tag as string;
}

// tagged interprets an enum's variant table. Variants without a payload
// map to null.
export function tagged<T extends { type: string }>(name: string, table: VariantTable): Codec<T> {
  return {
    encode(value) {
      const entry = table[value.type];
      if (entry === undefined) throw new TypeError(` + "`unknown ${name} variant ${value.type}`" + `);
      if (entry === null) return { type: value.type };
      return { type: value.type, [PAYLOAD_KEY]: entry.codec.encode((value as unknown as { value: unknown }).value) };
    },
    decode(raw, path) {
      const tag = discriminant(raw, path, name);
      if (!Object.prototype.hasOwnProperty.call(table, tag)) {
        fail(` + "`${path}.type`" + `, ` + "`unknown ${name} variant ${JSON.stringify(tag)}`" + `);
      }
      const entry = table[tag];
      if (entry === null) return { type: tag } as T;
      const obj = raw as Record<string, unknown>;
      if (!(PAYLOAD_KEY in obj)) {
        if (!entry.optional) fail(` + "`${path}.${PAYLOAD_KEY}`" + `, ` + "`missing payload of variant ${JSON.stringify(tag)}`" + `);
        return { type: tag, value: null } as unknown as T;
      }
      return { type: tag, value: entry.codec.decode(obj[PAYLOAD_KEY], ` + "`${path}.${PAYLOAD_KEY}`" + `) } as unknown as T;
    },
  };
}

// response decodes in two passes: the discriminant, then the variant.
export function response<T>(codec: Codec<T>): Codec<Response<T>> {
  return {
    encode(value) {
      if (value.type === "failure") {
        return { type: "failure", message: value.message, status: int.encode(value.status) };
      }
      return { type: "success", [PAYLOAD_KEY]: codec.encode(value.value) };
    },
    decode(raw, path) {
      const tag = discriminant(raw, path, "response");
      const obj = raw as Record<string, unknown>;
      switch (tag) {
        case "success":
          if (!(PAYLOAD_KEY in obj)) fail(` + "`${path}.${PAYLOAD_KEY}`" + `, "missing required field");
          return { type: "success", value: codec.decode(obj[PAYLOAD_KEY], ` + "`${path}.${PAYLOAD_KEY}`" + `) };
        case "failure": {
          if (!("message" in obj)) fail(` + "`${path}.message`" + `, "missing required field");
          if (!("status" in obj)) fail(` + "`${path}.status`" + `, "missing required field");
          const message = string.decode(obj.message, ` + "`${path}.message`" + `);
          const status = int.decode(obj.status, ` + "`${path}.status`" + `);
          return { type: "failure", message, status };
        }
        default:
          return fail(` + "`${path}.type`" + `, ` + "`unknown response type ${JSON.stringify(tag)}`" + `);
      }
    },
  };
}

export interface ClientConfig {
  endpoint: string;
  fetch?: typeof fetch;
  headers?: Record<string, string>;
}

export class ApiClient {
  constructor(readonly config: ClientConfig = { endpoint: endpoints.development }) {}

  async call<T>(
    method: "GET" | "POST",
    path: string,
    body: unknown,
    output: Codec<T>,
    sessionToken?: string,
  ): Promise<Response<T>> {
    const headers: Record<string, string> = { Accept: "application/json", ...this.config.headers };
    if (body !== undefined) headers["Content-Type"] = "application/json";
    if (sessionToken) headers["Authorization"] = ` + "`Bearer ${sessionToken}`" + `;
    const doFetch = this.config.fetch ?? fetch;
    const res = await doFetch(this.config.endpoint.replace(/\/+$/, "") + path, {
      method,
      headers,
      body: body === undefined ? undefined : JSON.stringify(body),
    });
    const text = await res.text();
    let raw: unknown;
    try {
      raw = JSON.parse(text);
    } catch {
      return fail("$", ` + "`response (HTTP ${res.status}) is not JSON`" + `);
    }
    return response(output).decode(raw, "$");
  }
}
`
