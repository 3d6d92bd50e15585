package postgres

const queryEnsureSchema = `
CREATE TABLE IF NOT EXISTS triggers (
    id              UUID PRIMARY KEY,
    target_session  TEXT NOT NULL,
    message         TEXT NOT NULL,
    is_recurring    BOOLEAN NOT NULL DEFAULT FALSE,
    interval_amount INTEGER NOT NULL DEFAULT 0,
    interval_unit   TEXT NOT NULL DEFAULT '',
    cron_expression TEXT NOT NULL DEFAULT '',
    timezone        TEXT NOT NULL DEFAULT '',
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    archived        BOOLEAN NOT NULL DEFAULT FALSE,
    fired_count     INTEGER NOT NULL DEFAULT 0,
    next_fire_at    TIMESTAMPTZ NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id                 UUID PRIMARY KEY,
    event_types        TEXT[] NOT NULL,
    filter_session     TEXT NOT NULL DEFAULT '',
    filter_member_id   TEXT NOT NULL DEFAULT '',
    filter_team_id     TEXT NOT NULL DEFAULT '',
    subscriber_session TEXT NOT NULL,
    one_shot           BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at         TIMESTAMPTZ,
    message_template   TEXT NOT NULL DEFAULT '',
    remind_after_ms    BIGINT NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ NOT NULL
);
`

const querySaveTrigger = `
INSERT INTO triggers (
    id, target_session, message, is_recurring, interval_amount,
    interval_unit, cron_expression, timezone, active, archived,
    fired_count, next_fire_at, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
    active       = EXCLUDED.active,
    archived     = EXCLUDED.archived,
    fired_count  = EXCLUDED.fired_count,
    next_fire_at = EXCLUDED.next_fire_at
`

const queryDeleteTrigger = `
DELETE FROM triggers WHERE id = $1
`

const queryListTriggers = `
SELECT
    id, target_session, message, is_recurring, interval_amount,
    interval_unit, cron_expression, timezone, active, archived,
    fired_count, next_fire_at, created_at
FROM triggers
ORDER BY created_at ASC
`

const querySaveSubscription = `
INSERT INTO subscriptions (
    id, event_types, filter_session, filter_member_id, filter_team_id,
    subscriber_session, one_shot, expires_at, message_template,
    remind_after_ms, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    expires_at = EXCLUDED.expires_at
`

const queryDeleteSubscription = `
DELETE FROM subscriptions WHERE id = $1
`

const queryListSubscriptions = `
SELECT
    id, event_types, filter_session, filter_member_id, filter_team_id,
    subscriber_session, one_shot, expires_at, message_template,
    remind_after_ms, created_at
FROM subscriptions
ORDER BY created_at ASC
`
