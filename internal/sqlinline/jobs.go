// Package sqlinline holds the inline SQL statements executed through
// infra.SQLRunner. Every statement opens with a --sql marker line; the
// sqllint tool keeps that invariant honest.
package sqlinline

const QJobStatsSummary = `--sql a5d035a9-b74d-42f8-ae92-037f94f9bfed
select
    count(*) as total_jobs,
    count(*) filter (where status = 'pending') as pending_jobs,
    count(*) filter (where status = 'processing') as processing_jobs,
    count(*) filter (where status = 'inspected') as inspected_jobs,
    count(*) filter (where status = 'error') as failed_jobs,
    count(*) filter (where analysis->>'verdict' = 'pass') as verdict_pass,
    count(*) filter (where analysis->>'verdict' = 'review') as verdict_review,
    count(*) filter (where analysis->>'verdict' = 'fail') as verdict_fail,
    avg((analysis->>'overall_ssim')::double precision) as avg_overall_ssim,
    count(*) filter (where created_at >= now() - interval '24 hours') as jobs_last24
from jobs;
`
