package fluid

import "fluidsim/gpu"

// Fragment sources are GLSL 4.10 core without the #version line; the
// device prepends it together with the variant's defines. The shared vertex
// stage provides vUv and the neighbor coordinates vL, vR, vT and vB.

const copyShader = `
in vec2 vUv;
out vec4 fragColor;

uniform sampler2D uTexture;

void main () {
    fragColor = texture(uTexture, vUv);
}
`

const clearShader = `
in vec2 vUv;
out vec4 fragColor;

uniform sampler2D uTexture;
uniform float value;

void main () {
    fragColor = value * texture(uTexture, vUv);
}
`

const splatShader = `
in vec2 vUv;
out vec4 fragColor;

uniform sampler2D uVelocity;
uniform float aspectRatio;
uniform vec2 point;
uniform vec2 force;
uniform float bias;
uniform float radius;

void main () {
    vec2 p = vUv - point;
    p.x *= aspectRatio;
    float g = exp(-dot(p, p) / radius);
    vec2 push = force + bias * p / (length(p) + 0.0001);
    vec2 base = texture(uVelocity, vUv).xy;
    fragColor = vec4(base + g * push, 0.0, 1.0);
}
`

const splatColorShader = `
in vec2 vUv;
out vec4 fragColor;

uniform sampler2D uTarget;
uniform float aspectRatio;
uniform vec3 color;
uniform vec2 point;
uniform float radius;

void main () {
    vec2 p = vUv - point;
    p.x *= aspectRatio;
    vec3 splat = exp(-dot(p, p) / radius) * color;
    vec3 base = texture(uTarget, vUv).xyz;
    fragColor = vec4(base + splat, 1.0);
}
`

const brownShader = `
in vec2 vUv;
out vec4 fragColor;

uniform sampler2D uVelocity;
uniform float bias;
uniform float a1;
uniform float a2;
uniform float b1;
uniform float b2;

const float TAU = 6.28318530718;

void main () {
    vec2 velocity = texture(uVelocity, vUv).xy;
    vec2 kick = vec2(sin(TAU * (a1 * vUv.y + a2)), sin(TAU * (b1 * vUv.x + b2)));
    fragColor = vec4(velocity + bias * kick, 0.0, 1.0);
}
`

const advectionShader = `
in vec2 vUv;
out vec4 fragColor;

uniform sampler2D uVelocity;
uniform sampler2D uSource;
uniform vec2 texelSize;
uniform vec2 dyeTexelSize;
uniform float dt;
uniform float dissipation;

vec4 bilerp (sampler2D sam, vec2 uv, vec2 tsize) {
    vec2 st = uv / tsize - 0.5;
    vec2 iuv = floor(st);
    vec2 fuv = fract(st);

    vec4 a = texture(sam, (iuv + vec2(0.5, 0.5)) * tsize);
    vec4 b = texture(sam, (iuv + vec2(1.5, 0.5)) * tsize);
    vec4 c = texture(sam, (iuv + vec2(0.5, 1.5)) * tsize);
    vec4 d = texture(sam, (iuv + vec2(1.5, 1.5)) * tsize);

    return mix(mix(a, b, fuv.x), mix(c, d, fuv.x), fuv.y);
}

void main () {
#ifdef MANUAL_FILTERING
    vec2 coord = vUv - dt * bilerp(uVelocity, vUv, texelSize).xy * texelSize;
    vec4 result = bilerp(uSource, coord, dyeTexelSize);
#else
    vec2 coord = vUv - dt * texture(uVelocity, vUv).xy * texelSize;
    vec4 result = texture(uSource, coord);
#endif
    float decay = 1.0 + dissipation * dt;
    fragColor = result / decay;
}
`

const divergenceShader = `
in vec2 vUv;
in vec2 vL;
in vec2 vR;
in vec2 vT;
in vec2 vB;
out vec4 fragColor;

uniform sampler2D uVelocity;

void main () {
    float L = texture(uVelocity, vL).x;
    float R = texture(uVelocity, vR).x;
    float T = texture(uVelocity, vT).y;
    float B = texture(uVelocity, vB).y;

    vec2 C = texture(uVelocity, vUv).xy;
    if (vL.x < 0.0) { L = -C.x; }
    if (vR.x > 1.0) { R = -C.x; }
    if (vT.y > 1.0) { T = -C.y; }
    if (vB.y < 0.0) { B = -C.y; }

    float div = 0.5 * (R - L + T - B);
    fragColor = vec4(div, 0.0, 0.0, 1.0);
}
`

const curlShader = `
in vec2 vUv;
in vec2 vL;
in vec2 vR;
in vec2 vT;
in vec2 vB;
out vec4 fragColor;

uniform sampler2D uVelocity;

void main () {
    float L = texture(uVelocity, vL).y;
    float R = texture(uVelocity, vR).y;
    float T = texture(uVelocity, vT).x;
    float B = texture(uVelocity, vB).x;
    float vorticity = R - L - T + B;
    fragColor = vec4(0.5 * vorticity, 0.0, 0.0, 1.0);
}
`

const vorticityShader = `
in vec2 vUv;
in vec2 vL;
in vec2 vR;
in vec2 vT;
in vec2 vB;
out vec4 fragColor;

uniform sampler2D uVelocity;
uniform sampler2D uCurl;
uniform float curl;
uniform float dt;

void main () {
    float L = texture(uCurl, vL).x;
    float R = texture(uCurl, vR).x;
    float T = texture(uCurl, vT).x;
    float B = texture(uCurl, vB).x;
    float C = texture(uCurl, vUv).x;

    vec2 force = 0.5 * vec2(abs(T) - abs(B), abs(R) - abs(L));
    force /= length(force) + 0.0001;
    force *= curl * C;
    force.y *= -1.0;

    vec2 velocity = texture(uVelocity, vUv).xy;
    velocity += force * dt;
    velocity = min(max(velocity, -1000.0), 1000.0);
    fragColor = vec4(velocity, 0.0, 1.0);
}
`

const pressureShader = `
in vec2 vUv;
in vec2 vL;
in vec2 vR;
in vec2 vT;
in vec2 vB;
out vec4 fragColor;

uniform sampler2D uPressure;
uniform sampler2D uDivergence;

void main () {
    float L = texture(uPressure, vL).x;
    float R = texture(uPressure, vR).x;
    float T = texture(uPressure, vT).x;
    float B = texture(uPressure, vB).x;
    float divergence = texture(uDivergence, vUv).x;
    float pressure = (L + R + B + T - divergence) * 0.25;
    fragColor = vec4(pressure, 0.0, 0.0, 1.0);
}
`

const gradientSubtractShader = `
in vec2 vUv;
in vec2 vL;
in vec2 vR;
in vec2 vT;
in vec2 vB;
out vec4 fragColor;

uniform sampler2D uPressure;
uniform sampler2D uVelocity;

void main () {
    float L = texture(uPressure, vL).x;
    float R = texture(uPressure, vR).x;
    float T = texture(uPressure, vT).x;
    float B = texture(uPressure, vB).x;
    vec2 velocity = texture(uVelocity, vUv).xy;
    velocity -= vec2(R - L, T - B);
    fragColor = vec4(velocity, 0.0, 1.0);
}
`

const displayShader = `
in vec2 vUv;
in vec2 vL;
in vec2 vR;
in vec2 vT;
in vec2 vB;
out vec4 fragColor;

uniform sampler2D uTexture;
uniform vec2 texelSize;
uniform float background;
uniform vec3 backColor;
uniform float transparent;

void main () {
    vec3 c = texture(uTexture, vUv).rgb;

#ifdef SHADING
    vec3 lc = texture(uTexture, vL).rgb;
    vec3 rc = texture(uTexture, vR).rgb;
    vec3 tc = texture(uTexture, vT).rgb;
    vec3 bc = texture(uTexture, vB).rgb;

    float dx = length(rc) - length(lc);
    float dy = length(tc) - length(bc);

    vec3 n = normalize(vec3(dx, dy, length(texelSize)));
    vec3 l = vec3(0.0, 0.0, 1.0);

    float diffuse = clamp(dot(n, l) + 0.7, 0.7, 1.0);
    c *= diffuse;
#endif

#ifdef REVERSED
    c = vec3(1.0) - clamp(c, 0.0, 1.0);
#endif

    float a = transparent > 0.5 ? max(c.r, max(c.g, c.b)) : 1.0;
    c += background * backColor / 255.0;
    fragColor = vec4(c, a);
}
`

// Display feature flags.
const (
	FlagShading         = "SHADING"
	FlagReversed        = "REVERSED"
	FlagManualFiltering = "MANUAL_FILTERING"
)

var (
	copySource             = gpu.Source{Name: "copy", Fragment: copyShader, Kernel: copyKernel}
	clearSource            = gpu.Source{Name: "clear", Fragment: clearShader, Kernel: clearKernel}
	splatSource            = gpu.Source{Name: "splat", Fragment: splatShader, Kernel: splatKernel}
	splatColorSource       = gpu.Source{Name: "splatColor", Fragment: splatColorShader, Kernel: splatColorKernel}
	brownSource            = gpu.Source{Name: "brown", Fragment: brownShader, Kernel: brownKernel}
	advectionSource        = gpu.Source{Name: "advection", Fragment: advectionShader, Kernel: advectionKernel}
	divergenceSource       = gpu.Source{Name: "divergence", Fragment: divergenceShader, Kernel: divergenceKernel}
	curlSource             = gpu.Source{Name: "curl", Fragment: curlShader, Kernel: curlKernel}
	vorticitySource        = gpu.Source{Name: "vorticity", Fragment: vorticityShader, Kernel: vorticityKernel}
	pressureSource         = gpu.Source{Name: "pressure", Fragment: pressureShader, Kernel: pressureKernel}
	gradientSubtractSource = gpu.Source{Name: "gradientSubtract", Fragment: gradientSubtractShader, Kernel: gradientSubtractKernel}
	displaySource          = gpu.Source{Name: "display", Fragment: displayShader, Kernel: displayKernel}
)
