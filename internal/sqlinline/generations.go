package sqlinline

const QInsertGeneration = `--sql fb7bb044-55bb-4156-a480-981da4ab4239
insert into generation_requests (
    id, order_id, prompt, duration_seconds, aspect_ratio, image_key, image_mime, status, attempts, created_at, updated_at
)
values ($1::uuid, nullif($2::text, ''), $3::text, $4::int, $5::text, nullif($6::text, ''), nullif($7::text, ''), 'QUEUED', '[]'::jsonb, now(), now())
returning created_at, updated_at;
`

const QSelectGeneration = `--sql ae43f097-4eca-42b5-8df0-3ae9960d7944
select
    id::text,
    coalesce(order_id, ''),
    prompt,
    duration_seconds,
    aspect_ratio,
    coalesce(image_key, ''),
    coalesce(image_mime, ''),
    status,
    coalesce(provider_used, ''),
    coalesce(video_location, ''),
    coalesce(error_detail, ''),
    coalesce(elapsed_ms, 0),
    attempts,
    created_at,
    updated_at
from generation_requests
where id = $1::uuid;
`

const QMarkGenerationRunning = `--sql ee9168fe-7917-436e-aa2b-47e304c8175c
update generation_requests
set status = 'RUNNING',
    updated_at = now()
where id = $1::uuid
  and status in ('QUEUED', 'RUNNING');
`

const QCompleteGeneration = `--sql 64c07367-ab7e-48ee-a9f1-70bdd8cbc822
update generation_requests
set status = 'SUCCEEDED',
    provider_used = $2::text,
    video_location = $3::text,
    video_key = $4::text,
    video_mime = $5::text,
    elapsed_ms = $6::bigint,
    attempts = $7::jsonb,
    error_detail = null,
    updated_at = now()
where id = $1::uuid;
`

const QFailGeneration = `--sql 6c5668aa-b0ac-47dc-a966-5c47cf512fcd
update generation_requests
set status = 'FAILED',
    error_detail = $2::text,
    attempts = coalesce($3::jsonb, attempts),
    updated_at = now()
where id = $1::uuid;
`

const QRequeueGeneration = `--sql ac67a9bf-e4ea-4517-8c14-03eb628e443b
update generation_requests
set status = 'QUEUED',
    updated_at = now()
where id = $1::uuid
  and status = 'RUNNING';
`
