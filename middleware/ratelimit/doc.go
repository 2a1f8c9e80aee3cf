// Package ratelimit fornece o adapter HTTP (net/http) do controle de admissão por janela fixa.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (espera por permissão com timeout opcional) sem net/http
//   - infra: implementações concretas (janela fixa, store por chave, estatísticas)
//   - ratelimit (este pacote): middleware HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Extrai a chave do cliente (header/XFF/X-Real-IP/RemoteAddr)
//   2) Bloqueia na camada application até a janela liberar uma permissão
//   3) Se o tempo de espera estourar, responde 429 com Retry-After; se o gateway
//      estiver desligando, responde 503
//   4) Se admitido, chama o próximo handler (ex: reverse proxy para a API da CRPT)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_WINDOW, RATE_MAX_PERMITS e ACQUIRE_TIMEOUT.
package ratelimit
