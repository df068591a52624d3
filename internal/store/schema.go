package store

// schemaSQL is applied on startup; every statement is idempotent. The CRM
// entity tables mirror the narrow slice of the document store this service
// reads (leads, deals, contacts); ownership of those records stays with the
// CRM.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS whatsapp_messages (
	message_id     TEXT PRIMARY KEY,
	direction      TEXT NOT NULL,
	counterpart    TEXT NOT NULL,
	body           TEXT NOT NULL DEFAULT '',
	content_kind   TEXT NOT NULL DEFAULT 'text',
	attachment_ref TEXT NOT NULL DEFAULT '',
	reply_to_id    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	template_body  TEXT NOT NULL DEFAULT '',
	sender_name    TEXT NOT NULL DEFAULT '',
	entity_type    TEXT NOT NULL DEFAULT '',
	entity_id      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_whatsapp_messages_reference
	ON whatsapp_messages (entity_type, entity_id);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	first_name    TEXT,
	last_name     TEXT,
	lead_name     TEXT,
	mobile_no     TEXT,
	mobile_digits TEXT,
	phone         TEXT,
	phone_digits  TEXT,
	lead_owner    TEXT,
	source        TEXT,
	assigned_to   TEXT
);

CREATE INDEX IF NOT EXISTS idx_leads_mobile_digits ON leads (mobile_digits);

CREATE TABLE IF NOT EXISTS contacts (
	id            TEXT PRIMARY KEY,
	full_name     TEXT,
	mobile_no     TEXT,
	mobile_digits TEXT
);

CREATE INDEX IF NOT EXISTS idx_contacts_mobile_digits ON contacts (mobile_digits);

CREATE TABLE IF NOT EXISTS deals (
	id      TEXT PRIMARY KEY,
	lead_id TEXT
);

CREATE TABLE IF NOT EXISTS deal_contacts (
	deal_id    TEXT NOT NULL,
	contact_id TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (deal_id, contact_id)
);

CREATE TABLE IF NOT EXISTS vendor_outbox (
	id              TEXT PRIMARY KEY,
	recipient       TEXT NOT NULL,
	kind            TEXT NOT NULL,
	body            TEXT NOT NULL DEFAULT '',
	file_url        TEXT NOT NULL DEFAULT '',
	filename        TEXT NOT NULL DEFAULT '',
	template        TEXT NOT NULL DEFAULT '',
	template_params TEXT NOT NULL DEFAULT '',
	reply_to_id     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);
`
