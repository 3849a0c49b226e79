package postgres

const schemaMemories = `
CREATE TABLE IF NOT EXISTS memories (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	gist TEXT NOT NULL DEFAULT '',
	full_summary TEXT NOT NULL DEFAULT '',
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	tags JSONB NOT NULL DEFAULT '[]',
	topics JSONB NOT NULL DEFAULT '[]',
	keywords JSONB NOT NULL DEFAULT '[]',
	source TEXT NOT NULL DEFAULT '',
	source_id TEXT NOT NULL DEFAULT '',
	parent_id TEXT NOT NULL DEFAULT '',
	related_ids JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'Active',
	version BIGINT NOT NULL DEFAULT 1,
	accessed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_memories_tenant_status ON memories (tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_memories_tenant_accessed ON memories (tenant_id, accessed_at DESC);
`

// schemaMemoryIndex is the retrieval-facing projection: a 1536-dim pgvector
// column for dense search and a generated tsvector column for lexical
// search, each with its own index.
const schemaMemoryIndex = `
CREATE TABLE IF NOT EXISTS memory_index (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	memory_id UUID NOT NULL,
	kind TEXT NOT NULL,
	gist TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]',
	topics JSONB NOT NULL DEFAULT '[]',
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	status TEXT NOT NULL DEFAULT 'Active',
	accessed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	embedding vector(1536),
	search_text TEXT NOT NULL DEFAULT '',
	search_vector tsvector GENERATED ALWAYS AS (to_tsvector('english', search_text)) STORED
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_index_memory ON memory_index (tenant_id, memory_id);
CREATE INDEX IF NOT EXISTS idx_memory_index_tenant_status ON memory_index (tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_memory_index_search_vector ON memory_index USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_memory_index_embedding ON memory_index USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`

const schemaPatterns = `
CREATE TABLE IF NOT EXISTS patterns (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	pattern_type TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	problem TEXT NOT NULL DEFAULT '',
	solution TEXT NOT NULL DEFAULT '',
	trigger TEXT NOT NULL DEFAULT '',
	context TEXT NOT NULL DEFAULT '',
	examples JSONB NOT NULL DEFAULT '[]',
	success_count BIGINT NOT NULL DEFAULT 0,
	failure_count BIGINT NOT NULL DEFAULT 0,
	avg_outcome DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	is_public BOOLEAN NOT NULL DEFAULT false,
	tags JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'Active',
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_patterns_tenant_status ON patterns (tenant_id, status);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	identity TEXT NOT NULL DEFAULT '',
	interests JSONB NOT NULL DEFAULT '[]',
	tools JSONB NOT NULL DEFAULT '[]',
	working_hours JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'Active',
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, user_id)
);
`

const schemaFacts = `
CREATE TABLE IF NOT EXISTS profile_facts (
	id UUID PRIMARY KEY,
	profile_id UUID NOT NULL REFERENCES profiles (id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	verified BOOLEAN NOT NULL DEFAULT false,
	verified_at TIMESTAMPTZ,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_profile_facts_profile ON profile_facts (profile_id);
`

const schemaPreferences = `
CREATE TABLE IF NOT EXISTS profile_preferences (
	profile_id UUID NOT NULL REFERENCES profiles (id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (profile_id, key)
);
`

const schemaEntities = `
CREATE TABLE IF NOT EXISTS entities (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	name TEXT NOT NULL,
	aliases JSONB NOT NULL DEFAULT '[]',
	attributes JSONB NOT NULL DEFAULT '{}',
	mention_count BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'Active',
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_entities_tenant_name ON entities (tenant_id, name);
`

const schemaRelationships = `
CREATE TABLE IF NOT EXISTS relationships (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	from_entity_id UUID NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
	to_entity_id UUID NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	strength DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	status TEXT NOT NULL DEFAULT 'Active',
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships (tenant_id, from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships (tenant_id, to_entity_id);
`

const schemaSessions = `
CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	turn_count BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'Active',
	version BIGINT NOT NULL DEFAULT 1,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant_user ON sessions (tenant_id, user_id);
`

const schemaTurns = `
CREATE TABLE IF NOT EXISTS turns (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	session_id UUID NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	dehydrated BOOLEAN NOT NULL DEFAULT false,
	status TEXT NOT NULL DEFAULT 'Active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns (tenant_id, session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_turns_undehydrated ON turns (tenant_id, dehydrated) WHERE dehydrated = false;
`
