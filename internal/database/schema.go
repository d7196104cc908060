package database

// GetSchema returns the full SQL schema for the asset registry database.
func GetSchema() string {
	return `
-- assets: one row per content identity
CREATE TABLE IF NOT EXISTS assets (
    id TEXT PRIMARY KEY,             -- UUID
    hash TEXT,                       -- canonical "blake3:<64hex>", NULL = stub
    size_bytes INTEGER NOT NULL DEFAULT 0,
    mime_type TEXT,
    created_at INTEGER NOT NULL      -- unix nanoseconds
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_hash ON assets(hash) WHERE hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at);

-- asset_references: named, owned handles to assets
CREATE TABLE IF NOT EXISTS asset_references (
    id TEXT PRIMARY KEY,             -- UUID
    asset_id TEXT NOT NULL REFERENCES assets(id),
    owner_id TEXT NOT NULL DEFAULT '',  -- empty = public
    name TEXT NOT NULL,
    preview_id TEXT,                 -- optional Asset used as preview
    user_metadata TEXT,              -- JSON object
    enrichment_level INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    last_access_time INTEGER NOT NULL,
    UNIQUE(asset_id, owner_id, name)
);

CREATE INDEX IF NOT EXISTS idx_refs_asset ON asset_references(asset_id);
CREATE INDEX IF NOT EXISTS idx_refs_name ON asset_references(name);
CREATE INDEX IF NOT EXISTS idx_refs_created ON asset_references(created_at);
CREATE INDEX IF NOT EXISTS idx_refs_updated ON asset_references(updated_at);
CREATE INDEX IF NOT EXISTS idx_refs_access ON asset_references(last_access_time);
CREATE INDEX IF NOT EXISTS idx_refs_enrichment ON asset_references(enrichment_level);

-- cache_states: "these bytes live at this absolute path"
CREATE TABLE IF NOT EXISTS cache_states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    asset_id TEXT NOT NULL REFERENCES assets(id),
    file_path TEXT NOT NULL UNIQUE,  -- absolute, globally unique
    mtime_ns INTEGER,
    needs_verify INTEGER NOT NULL DEFAULT 0,
    is_missing INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_states_asset ON cache_states(asset_id);
CREATE INDEX IF NOT EXISTS idx_states_missing ON cache_states(is_missing);

-- tags
CREATE TABLE IF NOT EXISTS tags (
    name TEXT PRIMARY KEY,
    tag_type TEXT NOT NULL DEFAULT 'user'
);

CREATE TABLE IF NOT EXISTS reference_tags (
    reference_id TEXT NOT NULL REFERENCES asset_references(id) ON DELETE CASCADE,
    tag_name TEXT NOT NULL REFERENCES tags(name),
    origin TEXT NOT NULL DEFAULT 'manual',  -- 'manual' | 'automatic'
    added_at INTEGER NOT NULL,
    PRIMARY KEY (reference_id, tag_name)
);

CREATE INDEX IF NOT EXISTS idx_ref_tags_tag ON reference_tags(tag_name);

-- reference_meta: typed projection of user_metadata for indexed filtering
CREATE TABLE IF NOT EXISTS reference_meta (
    reference_id TEXT NOT NULL REFERENCES asset_references(id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    ordinal INTEGER NOT NULL DEFAULT 0,
    val_str TEXT,
    val_num NUMERIC,
    val_bool INTEGER,
    val_json TEXT,
    PRIMARY KEY (reference_id, key, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_meta_key_str ON reference_meta(key, val_str);
CREATE INDEX IF NOT EXISTS idx_meta_key_num ON reference_meta(key, val_num);
CREATE INDEX IF NOT EXISTS idx_meta_key_bool ON reference_meta(key, val_bool);
`
}
