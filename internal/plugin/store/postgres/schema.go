package postgres

// schemaSQL is applied by the migrator. Idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL,
    tenant_id  TEXT NOT NULL DEFAULT '',
    fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
    relations  JSONB NOT NULL DEFAULT '{}'::jsonb,
    version    BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_type_tenant ON documents (type, tenant_id, id);
CREATE INDEX IF NOT EXISTS idx_documents_relations ON documents USING GIN (relations);
`
