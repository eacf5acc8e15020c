package sqlinline

const QSelectIntegrationToken = `--sql 8c692309-f38e-44b3-a762-2f8ffa4ce35c
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 420dd686-8269-4fdf-b330-c2c4c5bae66c
insert into integration_tokens (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
