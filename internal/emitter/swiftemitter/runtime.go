package swiftemitter

// runtimeTemplate is Api.swift: configuration, transport, the response
// envelope, and the shared routine every enum's variant table drives.
const runtimeTemplate = `import Foundation

public let fenPayloadKey = "{{js .PayloadKey}}"

public struct APIConfiguration: Sendable {
    public var endpoint: URL
    public var headers: [String: String]

    public init(endpoint: URL, headers: [String: String] = [:]) {
        self.endpoint = endpoint
        self.headers = headers
    }

    public static let development = APIConfiguration(endpoint: URL(string: "{{js .Endpoint}}")!)
{{- if .EndpointProd}}
    public static let production = APIConfiguration(endpoint: URL(string: "{{js .EndpointProd}}")!)
{{- end}}
}

/// Thrown when bytes received do not match the expected type.
public struct ProtocolDecodeError: Error, CustomStringConvertible, Sendable {
    public let path: String
    public let reason: String

    public var description: String { "decode \(path): \(reason)" }
}

/// A well-formed failure envelope returned by the server.
public struct ApplicationError: Error, Equatable, Sendable {
    public let message: String
    public let status: Int
}

public enum Response<Value> {
    case success(Value)
    case failure(ApplicationError)

    public func get() throws -> Value {
        switch self {
        case let .success(value):
            return value
        case let .failure(error):
            throw error
        }
    }
}

extension Response: Equatable where Value: Equatable {}

extension Response: Sendable where Value: Sendable {}

/// A UUID that is always sent in lowercase hyphenated form.
public struct FenUUID: Codable, Hashable, Sendable, CustomStringConvertible {
    public var uuid: UUID

    public init(_ uuid: UUID = UUID()) {
        self.uuid = uuid
    }

    public init?(uuidString: String) {
        guard uuidString.count == 36, let uuid = UUID(uuidString: uuidString) else { return nil }
        self.uuid = uuid
    }

    public var description: String { uuid.uuidString.lowercased() }

    public init(from decoder: Decoder) throws {
        let container = try decoder.singleValueContainer()
        let s = try container.decode(String.self)
        guard let value = FenUUID(uuidString: s) else {
            throw DecodingError.dataCorruptedError(in: container, debugDescription: "\(s) is not a hyphenated UUID")
        }
        self = value
    }

    public func encode(to encoder: Encoder) throws {
        var container = encoder.singleValueContainer()
        try container.encode(description)
    }
}

enum FenDate {
    static func truncate(_ date: Date) -> Date {
        Date(timeIntervalSince1970: date.timeIntervalSince1970.rounded(.down))
    }

    static func decode(_ decoder: Decoder) throws -> Date {
        let container = try decoder.singleValueContainer()
        let s = try container.decode(String.self)
        let fractional = ISO8601DateFormatter()
        fractional.formatOptions = [.withInternetDateTime, .withFractionalSeconds]
        guard let date = ISO8601DateFormatter().date(from: s) ?? fractional.date(from: s) else {
            throw DecodingError.dataCorruptedError(in: container, debugDescription: "\(s) is not an RFC 3339 timestamp")
        }
        return truncate(date)
    }

    static func encode(_ date: Date, _ encoder: Encoder) throws {
        var container = encoder.singleValueContainer()
        try container.encode(ISO8601DateFormatter().string(from: truncate(date)))
    }
}

public struct FenKey: CodingKey, Hashable, Sendable {
    public var stringValue: String
    public var intValue: Int? { nil }

    public init(_ stringValue: String) {
        self.stringValue = stringValue
    }

    public init?(stringValue: String) {
        self.stringValue = stringValue
    }

    public init?(intValue: Int) {
        return nil
    }

    static let type = FenKey("type")
    static let payload = FenKey(fenPayloadKey)
}

/// One row of an enum's variant table.
public struct FenVariant<T> {
    let decode: (KeyedDecodingContainer<FenKey>) throws -> T

    public static func unit(_ value: T) -> FenVariant<T> {
        FenVariant { _ in value }
    }

    public static func payload<P: Decodable>(_: P.Type, _ make: @escaping (P) -> T) -> FenVariant<T> {
        FenVariant { container in
            guard container.contains(.payload) else {
                throw DecodingError.keyNotFound(FenKey.payload, DecodingError.Context(codingPath: container.codingPath, debugDescription: "missing variant payload"))
            }
            return make(try container.decode(P.self, forKey: .payload))
        }
    }

    /// A payload of optional type: missing and null both decode as nil.
    public static func optionalPayload<P: Decodable>(_: P.Type, _ make: @escaping (P?) -> T) -> FenVariant<T> {
        FenVariant { container in
            make(try container.decodeIfPresent(P.self, forKey: .payload))
        }
    }
}

func fenDecodeTagged<T>(_ decoder: Decoder, name: String, variants: [String: FenVariant<T>]) throws -> T {
    let container = try decoder.container(keyedBy: FenKey.self)
    let tag = try container.decode(String.self, forKey: .type)
    guard let variant = variants[tag] else {
        throw DecodingError.dataCorruptedError(forKey: .type, in: container, debugDescription: "unknown \(name) variant \(tag)")
    }
    return try variant.decode(container)
}

func fenEncodeTagged(_ encoder: Encoder, tag: String) throws {
    var container = encoder.container(keyedBy: FenKey.self)
    try container.encode(tag, forKey: .type)
}

func fenEncodeTagged<P: Encodable>(_ encoder: Encoder, tag: String, payload: P) throws {
    var container = encoder.container(keyedBy: FenKey.self)
    try container.encode(tag, forKey: .type)
    try container.encode(payload, forKey: .payload)
}

struct FenEnvelope<Output: Decodable>: Decodable {
    let response: Response<Output>

    init(from decoder: Decoder) throws {
        let container = try decoder.container(keyedBy: FenKey.self)
        let tag = try container.decode(String.self, forKey: .type)
        switch tag {
        case "success":
            response = .success(try container.decode(Output.self, forKey: .payload))
        case "failure":
            let message = try container.decode(String.self, forKey: FenKey("message"))
            let status = try container.decode(Int.self, forKey: FenKey("status"))
            response = .failure(ApplicationError(message: message, status: status))
        default:
            throw DecodingError.dataCorruptedError(forKey: .type, in: container, debugDescription: "unknown response type \(tag)")
        }
    }
}

func fenPath(_ keys: [CodingKey]) -> String {
    keys.reduce("$") { path, key in
        if let index = key.intValue {
            return "\(path)[\(index)]"
        }
        return "\(path).\(key.stringValue)"
    }
}

func fenProtocolError(_ error: DecodingError) -> ProtocolDecodeError {
    switch error {
    case let .typeMismatch(_, context), let .valueNotFound(_, context), let .dataCorrupted(context):
        return ProtocolDecodeError(path: fenPath(context.codingPath), reason: context.debugDescription)
    case let .keyNotFound(key, context):
        return ProtocolDecodeError(path: fenPath(context.codingPath + [key]), reason: "missing required field")
    @unknown default:
        return ProtocolDecodeError(path: "$", reason: String(describing: error))
    }
}

func fenEncode<T: Encodable>(_ value: T) throws -> Data {
    let encoder = JSONEncoder()
    encoder.dateEncodingStrategy = .custom(FenDate.encode)
    encoder.outputFormatting = [.withoutEscapingSlashes]
    return try encoder.encode(value)
}

public protocol Fetcher: Sendable {
    func fetch(_ request: URLRequest) async throws -> (Data, URLResponse)
}

public struct LiveFetcher: Fetcher {
    public let session: URLSession

    public init(session: URLSession = .shared) {
        self.session = session
    }

    public func fetch(_ request: URLRequest) async throws -> (Data, URLResponse) {
        try await session.data(for: request)
    }
}

/// Calls the API. Holds only configuration and may be shared freely.
public struct APIClient: Sendable {
    public let configuration: APIConfiguration
    public let fetcher: any Fetcher

    public init(configuration: APIConfiguration = .development, fetcher: any Fetcher = LiveFetcher()) {
        self.configuration = configuration
        self.fetcher = fetcher
    }

    func call<Output: Decodable>(
        _ method: String,
        _ path: String,
        body: Data?,
        output: Output.Type,
        sessionToken: String? = nil
    ) async throws -> Response<Output> {
        var base = configuration.endpoint.absoluteString
        while base.hasSuffix("/") {
            base.removeLast()
        }
        guard let url = URL(string: base + path) else {
            throw URLError(.badURL)
        }
        var request = URLRequest(url: url)
        request.httpMethod = method
        request.setValue("application/json", forHTTPHeaderField: "Accept")
        for (name, value) in configuration.headers {
            request.setValue(value, forHTTPHeaderField: name)
        }
        if let body {
            request.httpBody = body
            request.setValue("application/json", forHTTPHeaderField: "Content-Type")
        }
        if let sessionToken, !sessionToken.isEmpty {
            request.setValue("Bearer \(sessionToken)", forHTTPHeaderField: "Authorization")
        }
        let (data, _) = try await fetcher.fetch(request)
        let decoder = JSONDecoder()
        decoder.dateDecodingStrategy = .custom(FenDate.decode)
        do {
            return try decoder.decode(FenEnvelope<Output>.self, from: data).response
        } catch let error as DecodingError {
            throw fenProtocolError(error)
        }
    }
}
`
