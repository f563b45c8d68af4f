package database

const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    credit_balance BIGINT NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
    is_pro BOOLEAN NOT NULL DEFAULT FALSE,
    pro_expires_at TIMESTAMPTZ,
    payment_customer_id TEXT UNIQUE,
    payment_method_token TEXT,
    payment_method_expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_accounts_country ON accounts (country);

CREATE TABLE IF NOT EXISTS credit_transactions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    account_id UUID NOT NULL REFERENCES accounts (id),
    tx_type TEXT NOT NULL CHECK (tx_type IN ('PURCHASE', 'SPEND', 'REFUND', 'ADJUSTMENT')),
    amount BIGINT NOT NULL CHECK (amount <> 0),
    description TEXT NOT NULL DEFAULT '',
    external_payment_id TEXT UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_account ON credit_transactions (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS processed_payment_events (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    account_id UUID NOT NULL UNIQUE REFERENCES accounts (id),
    plan_type TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'CANCELED', 'PAST_DUE')),
    current_period_start TIMESTAMPTZ NOT NULL,
    current_period_end TIMESTAMPTZ NOT NULL,
    external_id TEXT NOT NULL UNIQUE,
    cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fee_transactions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    provider_id UUID NOT NULL REFERENCES accounts (id),
    payer_id UUID REFERENCES accounts (id),
    source TEXT NOT NULL,
    source_id UUID NOT NULL,
    amount BIGINT NOT NULL CHECK (amount >= 0),
    platform_fee BIGINT NOT NULL CHECK (platform_fee >= 0 AND platform_fee <= amount),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (source, source_id)
);
CREATE INDEX IF NOT EXISTS idx_fee_transactions_provider ON fee_transactions (provider_id);

CREATE TABLE IF NOT EXISTS payout_requests (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    provider_id UUID NOT NULL REFERENCES accounts (id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    method TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('REQUESTED', 'PROCESSING', 'COMPLETED', 'REJECTED')),
    requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    processed_at TIMESTAMPTZ,
    processed_by UUID REFERENCES accounts (id),
    rejection_reason TEXT,
    external_transfer_id TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_payout_requests_provider ON payout_requests (provider_id, status);

CREATE TABLE IF NOT EXISTS contests (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    creator_id UUID NOT NULL REFERENCES accounts (id),
    title TEXT NOT NULL,
    prize_description TEXT NOT NULL DEFAULT '',
    total_slots INT NOT NULL CHECK (total_slots > 0),
    slot_price BIGINT NOT NULL CHECK (slot_price >= 0),
    slots_taken INT NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN', 'CLOSED', 'RESOLVED')),
    winner_id UUID REFERENCES accounts (id),
    resolved_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT contests_slots_bounded CHECK (slots_taken >= 0 AND slots_taken <= total_slots)
);

CREATE TABLE IF NOT EXISTS contest_reservations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    contest_id UUID NOT NULL REFERENCES contests (id) ON DELETE CASCADE,
    participant_id UUID NOT NULL REFERENCES accounts (id),
    status TEXT NOT NULL CHECK (status IN ('HELD', 'CONFIRMED', 'RELEASED')),
    expires_at TIMESTAMPTZ NOT NULL,
    checkout_session_id TEXT UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_contest_reservations_held ON contest_reservations (expires_at) WHERE status = 'HELD';

CREATE TABLE IF NOT EXISTS contest_entries (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    contest_id UUID NOT NULL REFERENCES contests (id),
    participant_id UUID NOT NULL REFERENCES accounts (id),
    reservation_id UUID NOT NULL UNIQUE REFERENCES contest_reservations (id),
    entry_fee_paid BIGINT NOT NULL DEFAULT 0,
    is_winner BOOLEAN NOT NULL DEFAULT FALSE,
    entered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_contest_entries_contest ON contest_entries (contest_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_contest_entries_winner ON contest_entries (contest_id) WHERE is_winner;
`
