// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - FixedWindow: limiter de janela fixa com reset periódico e espera bloqueante
//   - Store: um FixedWindow por chave, com limpeza de chaves inativas
//   - MemoryStatsStore / RedisStatsStore: estatísticas de admissão
package infra
