// Package application contém os casos de uso (regras de aplicação) do controle de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: AdmissionService.Admit(ctx, key) bloqueia até a janela liberar uma permissão
// (ou até o timeout) e devolve o resultado com o tempo de espera.
package application
