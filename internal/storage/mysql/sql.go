package mysql

const insertPaymentSQL = `
INSERT IGNORE INTO payments
  (source, reference, credit, used, booking_ref, paid_at)
VALUES
  (?, ?, ?, 0, NULL, ?)
`

const findByReferenceSQL = `
SELECT id, source, reference, credit, used, booking_ref, paid_at, created_at
FROM payments
WHERE source = ? AND reference = ?
`

const findByAmountDateSQL = `
SELECT id, source, reference, credit, used, booking_ref, paid_at, created_at
FROM payments
WHERE source = ? AND credit = ? AND paid_at BETWEEN ? AND ?
ORDER BY paid_at DESC
LIMIT 1
`

// The balance check and the increment happen in one statement so two
// concurrent reserves on the same record serialize on the row lock and
// can never jointly exceed credit.
const reserveSQL = `
UPDATE payments
SET used = used + ?
WHERE id = ? AND credit - used >= ?
`

const attachBookingRefSQL = `
UPDATE payments SET booking_ref = ? WHERE id = ?
`

// Only clears reservations that never got a booking reference and have
// sat idle long enough that no in-flight attempt can still own them.
const resetOrphanSQL = `
UPDATE payments
SET used = 0
WHERE id = ? AND booking_ref IS NULL AND used > 0
  AND updated_at < NOW() - INTERVAL 90 SECOND
`

const existsPaymentSQL = `
SELECT 1 FROM payments WHERE id = ?
`

// -----------------------------------------------------------------------------
// RETRY STATE
// -----------------------------------------------------------------------------

const insertRetrySQL = `
INSERT INTO retry_states
  (customer_key, stage, attempts, request, escalated, distress, clarification_sent, version)
VALUES
  (?, ?, ?, ?, ?, ?, ?, 1)
`

// Optimistic CAS: the row must still carry the version the caller read.
const updateRetrySQL = `
UPDATE retry_states
SET stage = ?, attempts = ?, request = ?, escalated = ?, distress = ?,
    clarification_sent = ?, version = version + 1
WHERE customer_key = ? AND version = ?
`

const loadRetrySQL = `
SELECT customer_key, stage, attempts, request, escalated, distress,
       clarification_sent, version, created_at, updated_at
FROM retry_states
WHERE customer_key = ?
`

const deleteRetrySQL = `
DELETE FROM retry_states WHERE customer_key = ?
`

const listPendingRetrySQL = `
SELECT customer_key, stage, attempts, request, escalated, distress,
       clarification_sent, version, created_at, updated_at
FROM retry_states
WHERE escalated = 0
ORDER BY created_at
`
