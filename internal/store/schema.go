package store

// Schema creates the marketplace tables. Timestamps are stored as fixed-width
// UTC text so lexical order equals chronological order on both drivers.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	did TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'publisher',
	api_key_hash TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS capabilities (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	input_schema TEXT,
	price TEXT,
	domains TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capabilities_type ON capabilities(type);
CREATE INDEX IF NOT EXISTS idx_capabilities_agent ON capabilities(agent_id);

CREATE TABLE IF NOT EXISTS rfps (
	id TEXT PRIMARY KEY,
	creator_agent_id TEXT NOT NULL REFERENCES agents(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	capability_type TEXT NOT NULL,
	domain_filters TEXT NOT NULL DEFAULT '[]',
	budget TEXT,
	deadline_at TEXT,
	status TEXT NOT NULL DEFAULT 'open',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rfps_creator ON rfps(creator_agent_id);
CREATE INDEX IF NOT EXISTS idx_rfps_type_status ON rfps(capability_type, status);

CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	rfp_id TEXT NOT NULL REFERENCES rfps(id) ON DELETE CASCADE,
	supplier_agent_id TEXT NOT NULL REFERENCES agents(id),
	status TEXT NOT NULL DEFAULT 'pending',
	price TEXT,
	delivery_at TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE(rfp_id, supplier_agent_id)
);
CREATE INDEX IF NOT EXISTS idx_proposals_supplier ON proposals(supplier_agent_id);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_parties (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	agent_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (session_id, agent_id)
);
CREATE INDEX IF NOT EXISTS idx_session_parties_agent ON session_parties(agent_id);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	sender TEXT NOT NULL,
	payload TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, seq);
`
