package rustemitter

// runtimeTemplate follows the module declarations in mod.rs: the envelope,
// the date codec and the path helper shared by every endpoint module.
const runtimeTemplate = `use chrono::{DateTime, Timelike, Utc};
use serde::{Deserialize, Deserializer, Serialize, Serializer};
pub use uuid::Uuid;

/// Key of the success payload and of enum variant payloads.
pub const PAYLOAD_KEY: &str = {{printf "%q" .PayloadKey}};

/// The envelope every endpoint answers with.
#[derive(Serialize, Deserialize, Debug, Clone, PartialEq)]
#[serde(tag = "type", rename_all = "camelCase")]
pub enum Response<T> {
    Success {
        #[serde(rename = {{printf "%q" .PayloadKey}})]
        value: T,
    },
    Failure {
        message: String,
        status: i64,
    },
}

impl<T> Response<T> {
    pub const fn success(value: T) -> Self {
        Self::Success { value }
    }

    pub fn failure(status: i64, message: &str) -> Self {
        Self::Failure {
            message: message.to_string(),
            status,
        }
    }
}

/// A UTC timestamp with whole-second precision, written as
/// YYYY-MM-DDTHH:MM:SSZ.
#[derive(Debug, Clone, Copy, PartialEq, Eq, PartialOrd, Ord, Hash)]
pub struct FenDate(pub DateTime<Utc>);

impl FenDate {
    pub fn new(t: DateTime<Utc>) -> Self {
        Self(t.with_nanosecond(0).unwrap_or(t))
    }
}

impl From<DateTime<Utc>> for FenDate {
    fn from(t: DateTime<Utc>) -> Self {
        Self::new(t)
    }
}

impl Serialize for FenDate {
    fn serialize<S: Serializer>(&self, serializer: S) -> Result<S::Ok, S::Error> {
        serializer.collect_str(&self.0.format("%Y-%m-%dT%H:%M:%SZ"))
    }
}

impl<'de> Deserialize<'de> for FenDate {
    fn deserialize<D: Deserializer<'de>>(deserializer: D) -> Result<Self, D::Error> {
        let s = String::deserialize(deserializer)?;
        DateTime::parse_from_rfc3339(&s)
            .map(|t| Self::new(t.with_timezone(&Utc)))
            .map_err(serde::de::Error::custom)
    }
}

/// Prefixes an endpoint path with the route namespace.
pub fn fen_path(path: &str) -> String {
    format!("/_fen_{path}")
}
`
